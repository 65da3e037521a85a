package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/calloway-health/consultline/internal/storage"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoiceID    = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID    = "eleven_monolingual_v1"
)

// ElevenLabs synthesizes MP3 audio and uploads it through the configured
// Uploader; the returned URL is what gets played back on the call.
type ElevenLabs struct {
	rest     *resty.Client
	apiKey   string
	voiceID  string
	uploader storage.Uploader
}

func NewElevenLabs(apiKey, voiceID string, uploader storage.Uploader) *ElevenLabs {
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	return &ElevenLabs{
		rest:     resty.New().SetBaseURL(elevenLabsBaseURL),
		apiKey:   apiKey,
		voiceID:  voiceID,
		uploader: uploader,
	}
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (string, error) {
	resp, err := e.rest.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "audio/mpeg").
		SetBody(synthesizeRequest{Text: text, ModelID: defaultModelID}).
		Post("/text-to-speech/" + e.voiceID)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	if len(audio) == 0 {
		return "", fmt.Errorf("elevenlabs: empty audio response")
	}

	objectName := "tts/" + uuid.NewString() + ".mp3"
	return e.uploader.Upload(ctx, objectName, "audio/mpeg", bytes.NewReader(audio))
}
