package reply

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

// VertexGemini is the alternate reply provider. The streamed chunks are
// concatenated into one utterance: phone playback needs the whole sentence
// before synthesis anyway.
type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	if location == "" {
		location = "us-central1"
	}
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	m.SystemInstruction = &vertexgenai.Content{
		Parts: []vertexgenai.Part{vertexgenai.Text(SystemPrompt)},
	}
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) Reply(ctx context.Context, history []Message) (string, error) {
	var prompt strings.Builder
	for _, m := range history {
		switch m.Role {
		case "assistant":
			prompt.WriteString("Assistant: ")
		default:
			prompt.WriteString("Patient: ")
		}
		prompt.WriteString(m.Text)
		prompt.WriteString("\n")
	}
	prompt.WriteString("Assistant:")

	it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt.String()))

	var out strings.Builder
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					out.WriteString(string(t))
				}
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
