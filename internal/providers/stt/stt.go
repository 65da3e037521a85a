package stt

import "context"

// Fragment is one transcript piece from a streaming session. IsFinal marks
// the end of an utterance; only final fragments drive a dialogue turn.
type Fragment struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

// Stream is one live transcription session for a single call. Fragments is
// closed when the provider ends the stream; Err reports why.
type Stream interface {
	Fragments() <-chan Fragment
	Err() error
	Close() error
}

// Provider opens streaming transcription sessions keyed by the telephony
// provider's call identifier.
type Provider interface {
	Open(ctx context.Context, callSID string) (Stream, error)
	Close() error
}
