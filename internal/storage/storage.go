package storage

import (
	"context"
	"io"
)

// Uploader stores a synthesized-audio object and returns a URL the telephony
// provider can fetch for playback.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (publicURL string, err error)
}
