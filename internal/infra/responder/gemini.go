// File: internal/infra/responder/gemini.go
package responder

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"graphql-chat-client/internal/domain/ports/adapter"
)

// Gemini answers through the official SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ adapter.Responder = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, baseURL, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: c, model: model}, nil
}

func (g *Gemini) Reply(ctx context.Context, text string) (string, error) {
	chat, err := g.client.Chats.Create(ctx, g.model, &genai.GenerateContentConfig{}, nil)
	if err != nil {
		return "", err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", err
	}
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			return t, nil
		}
	}
	return "", errors.New("gemini: empty candidate")
}
