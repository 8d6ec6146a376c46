// Package ai adapts remote completion providers to one narrow interface.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/gemchat/backend/internal/config"
)

var (
	ErrNotConfigured = errors.New("completion provider is not configured")
	ErrEmptyResponse = errors.New("no response from model")
	ErrUpstream      = errors.New("completion request failed")
)

// Role is the speaker of a turn as the remote model sees it.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one entry of the outbound conversation.
type Turn struct {
	Role Role
	Text string
}

// Params are the fixed generation settings of a call.
type Params struct {
	Temperature     float32
	MaxOutputTokens int
}

// Completer produces the next model turn for a conversation.
type Completer interface {
	Complete(ctx context.Context, turns []Turn, params Params) (string, error)
}

// NewCompleter builds the completer selected by cfg.Provider. A provider
// without credentials yields a completer that fails every call with
// ErrNotConfigured instead of failing startup.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	if !cfg.Enabled() {
		return Unconfigured{MissingKey: cfg.MissingKey()}, nil
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewEinoCompleter(chatModel), nil
	case config.ProviderOpenAI:
		return NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// Unconfigured stands in when no API key is present.
type Unconfigured struct {
	MissingKey string
}

func (u Unconfigured) Complete(context.Context, []Turn, Params) (string, error) {
	return "", u.Err()
}

// Err names the missing setting.
func (u Unconfigured) Err() error {
	if u.MissingKey == "" {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: set %s", ErrNotConfigured, u.MissingKey)
}

// upstream wraps a provider failure so callers can match ErrUpstream while
// the cause stays in the chain for logs.
func upstream(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, provider, err)
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
