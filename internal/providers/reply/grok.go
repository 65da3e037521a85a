package reply

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const (
	grokBaseURL      = "https://api.x.ai/v1"
	grokDefaultModel = "grok-2"
)

// Grok talks to the x.ai API, which speaks the OpenAI chat-completion wire
// format.
type Grok struct {
	client *openai.Client
	model  string
}

func NewGrok(apiKey, model string) *Grok {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = grokBaseURL
	if model == "" {
		model = grokDefaultModel
	}
	return &Grok{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *Grok) Close() error { return nil }

func (g *Grok) Reply(ctx context.Context, history []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt,
	})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("grok: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
