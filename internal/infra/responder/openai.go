// File: internal/infra/responder/openai.go
package responder

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"graphql-chat-client/internal/domain/ports/adapter"
)

const replySystemPrompt = "You are a concise, friendly chat assistant. Answer in a few sentences."

// OpenAI answers through the Chat Completions API. Prompts are clipped to a
// token budget before they leave the process.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
	enc       *tiktoken.Tiktoken
}

var _ adapter.Responder = (*OpenAI)(nil)

func NewOpenAI(apiKey, model string, maxPromptTokens int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model names fall back to the common encoding.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &OpenAI{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxPromptTokens,
		enc:       enc,
	}, nil
}

func (o *OpenAI) Reply(ctx context.Context, text string) (string, error) {
	text = o.clip(text)
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(replySystemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

// clip truncates the prompt to the configured token budget.
func (o *OpenAI) clip(text string) string {
	if o.maxTokens <= 0 {
		return text
	}
	toks := o.enc.Encode(text, nil, nil)
	if len(toks) <= o.maxTokens {
		return text
	}
	return o.enc.Decode(toks[:o.maxTokens])
}
