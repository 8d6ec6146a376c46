package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainCompleter drives a langchaingo model, an OpenAI-compatible
// endpoint in production.
type LangchainCompleter struct {
	llm llms.Model
}

// NewOpenAICompleter creates an OpenAI-compatible client. An empty baseURL
// keeps the library default.
func NewOpenAICompleter(apiKey, modelName, baseURL string) (*LangchainCompleter, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(modelName),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &LangchainCompleter{llm: llm}, nil
}

func langchainMessages(turns []Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		role := llms.ChatMessageTypeHuman
		if t.Role == RoleModel {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, t.Text))
	}
	return messages
}

// Complete implements Completer.
func (l *LangchainCompleter) Complete(ctx context.Context, turns []Turn, params Params) (string, error) {
	resp, err := l.llm.GenerateContent(ctx, langchainMessages(turns),
		llms.WithTemperature(float64(params.Temperature)),
		llms.WithMaxTokens(params.MaxOutputTokens),
	)
	if err != nil {
		return "", upstream("openai", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return nonEmpty(resp.Choices[0].Content)
}
