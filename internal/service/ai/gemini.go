package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiCompleter calls the Gemini API.
type GeminiCompleter struct {
	models    contentGenerator
	modelName string
}

// NewGeminiCompleter creates a Gemini API client authenticated with apiKey.
func NewGeminiCompleter(ctx context.Context, apiKey, modelName string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &GeminiCompleter{models: client.Models, modelName: modelName}, nil
}

func geminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

// Complete implements Completer.
func (g *GeminiCompleter) Complete(ctx context.Context, turns []Turn, params Params) (string, error) {
	temperature := params.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(params.MaxOutputTokens),
	}

	res, err := g.models.GenerateContent(ctx, g.modelName, geminiContents(turns), cfg)
	if err != nil {
		return "", upstream("gemini", err)
	}
	return nonEmpty(res.Text())
}
