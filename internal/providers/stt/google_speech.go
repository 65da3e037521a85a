package stt

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

// AudioSource supplies raw audio chunks for a call; implementations bridge
// the telephony provider's media stream.
type AudioSource interface {
	Chunks(ctx context.Context, callSID string) (<-chan []byte, error)
}

// GoogleSpeech is the alternate transcription provider, using Cloud Speech
// streaming recognition over audio supplied by an AudioSource.
type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	Language     string
	Source       AudioSource
}

func NewGoogleSpeech(ctx context.Context, src AudioSource) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_MULAW, // 8kHz phone audio
		SampleRateHz: 8000,
		Language:     "en-GB",
		Source:       src,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

type googleStream struct {
	frags  chan Fragment
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (g *GoogleSpeech) Open(ctx context.Context, callSID string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	rec, err := g.c.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	if err := rec.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            g.SampleRateHz,
					LanguageCode:               g.Language,
					EnableAutomaticPunctuation: true,
					Model:                      "phone_call",
				},
				InterimResults: true,
			},
		},
	}); err != nil {
		cancel()
		return nil, err
	}

	s := &googleStream{
		frags:  make(chan Fragment, 16),
		cancel: cancel,
	}

	if g.Source != nil {
		chunks, err := g.Source.Chunks(ctx, callSID)
		if err != nil {
			cancel()
			return nil, err
		}
		go func() {
			for chunk := range chunks {
				req := &speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
						AudioContent: chunk,
					},
				}
				if err := rec.Send(req); err != nil {
					s.setErr(err)
					return
				}
			}
			_ = rec.CloseSend()
		}()
	}

	go func() {
		defer close(s.frags)
		for {
			resp, err := rec.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.setErr(err)
				}
				return
			}
			for _, res := range resp.Results {
				if len(res.Alternatives) == 0 {
					continue
				}
				alt := res.Alternatives[0]
				if alt.Transcript == "" {
					continue
				}
				select {
				case s.frags <- Fragment{
					Text:       alt.Transcript,
					Confidence: float64(alt.Confidence),
					IsFinal:    res.IsFinal,
				}:
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
			}
		}
	}()

	return s, nil
}

func (s *googleStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *googleStream) Fragments() <-chan Fragment { return s.frags }

func (s *googleStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *googleStream) Close() error {
	s.cancel()
	return nil
}
