package tts

import "context"

// Provider turns reply text into a playable audio reference (a URL the
// telephony provider can fetch).
type Provider interface {
	Synthesize(ctx context.Context, text string) (audioURL string, err error)
}
