package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const assemblyRealtimeURL = "wss://api.assemblyai.com/v2/realtime/ws"

// AssemblyAI streams call audio through AssemblyAI's realtime websocket API.
type AssemblyAI struct {
	apiKey string
	url    string
}

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{apiKey: apiKey, url: assemblyRealtimeURL}
}

func (a *AssemblyAI) Close() error { return nil }

type assemblyMessage struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}

type assemblyStream struct {
	conn  *websocket.Conn
	frags chan Fragment

	mu     sync.Mutex
	err    error
	closed bool
}

func (a *AssemblyAI) Open(ctx context.Context, callSID string) (Stream, error) {
	header := http.Header{}
	header.Set("Authorization", a.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, a.url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	s := &assemblyStream{
		conn:  conn,
		frags: make(chan Fragment, 16),
	}
	go s.readLoop(ctx)
	return s, nil
}

func (s *assemblyStream) readLoop(ctx context.Context) {
	defer close(s.frags)
	for {
		if ctx.Err() != nil {
			s.setErr(ctx.Err())
			return
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return
		}

		var msg assemblyMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Text == "" {
			continue
		}

		frag := Fragment{
			Text:       msg.Text,
			Confidence: msg.Confidence,
			IsFinal:    msg.MessageType == "FinalTranscript",
		}
		select {
		case s.frags <- frag:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *assemblyStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.closed {
		s.err = err
	}
}

func (s *assemblyStream) Fragments() <-chan Fragment { return s.frags }

func (s *assemblyStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.err
}

func (s *assemblyStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
