// Package chat runs one chat turn: persist the user message, rebuild the
// context window, ask the model, persist the reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/gemchat/backend/internal/common"
	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	"github.com/zhouzirui/gemchat/backend/internal/service/ai"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

const (
	DefaultHistoryLimit = 20
	DefaultSystemPrompt = "You are a helpful, concise assistant."
	MaxRecentSessions   = 10
)

// Options tune the context window and the generation call.
type Options struct {
	HistoryLimit int
	SystemPrompt string
	Params       ai.Params
}

// DefaultOptions matches the production defaults.
func DefaultOptions() Options {
	return Options{
		HistoryLimit: DefaultHistoryLimit,
		SystemPrompt: DefaultSystemPrompt,
		Params:       ai.Params{Temperature: 0.7, MaxOutputTokens: 512},
	}
}

// Service orchestrates conversations over a MessageStore and a Completer.
type Service struct {
	messages  store.MessageStore
	completer ai.Completer
	opts      Options
}

// NewService bootstraps the orchestrator.
func NewService(messages store.MessageStore, completer ai.Completer, opts Options) *Service {
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Service{messages: messages, completer: completer, opts: opts}
}

// Send records text as a user turn of sessionID and returns the model reply.
// The two writes are independent: a failed completion leaves the user turn
// stored without an answer.
func (s *Service) Send(ctx context.Context, userID, sessionID, text string) (string, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(text) == "" {
		return "", common.NewValidationError("sessionId and message are required")
	}

	logger := observability.LoggerFromContext(ctx).With("session_id", sessionID, "user_id", userID)

	saved, err := s.messages.AppendMessage(ctx, chat.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      chat.RoleUser,
		Content:   text,
	})
	if err != nil {
		return "", fmt.Errorf("save user message: %w", err)
	}

	window, err := s.messages.RecentWindow(ctx, sessionID, userID, s.opts.HistoryLimit)
	if err != nil {
		if !errors.Is(err, store.ErrUnavailable) {
			return "", fmt.Errorf("load context window: %w", err)
		}
		window = nil
	}

	reply, err := s.completer.Complete(ctx, s.buildTurns(window, saved), s.opts.Params)
	if err != nil {
		logger.Error("[chat] completion failed", "error", err)
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", ai.ErrEmptyResponse
	}

	if _, err := s.messages.AppendMessage(ctx, chat.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      chat.RoleAssistant,
		Content:   reply,
	}); err != nil {
		return "", fmt.Errorf("save assistant message: %w", err)
	}

	logger.Info("[chat] reply generated", "context_turns", len(window), "length", len(reply))
	return reply, nil
}

// buildTurns prepends the instruction turn and maps stored roles onto the
// model's two roles. The current message is appended when the window does not
// contain it, which happens when nothing is persisted.
func (s *Service) buildTurns(window []chat.Message, current chat.Message) []ai.Turn {
	turns := make([]ai.Turn, 0, len(window)+2)
	turns = append(turns, ai.Turn{Role: ai.RoleUser, Text: s.opts.SystemPrompt})

	seen := false
	for _, msg := range window {
		if msg.ID == current.ID {
			seen = true
		}
		role := ai.RoleUser
		if msg.Role == chat.RoleAssistant {
			role = ai.RoleModel
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Content})
	}

	if !seen {
		turns = append(turns, ai.Turn{Role: ai.RoleUser, Text: current.Content})
	}
	return turns
}

// History returns the full session transcript, or an empty one when the
// store is not connected.
func (s *Service) History(ctx context.Context, userID, sessionID string) ([]chat.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, common.NewValidationError("sessionId is required")
	}

	msgs, err := s.messages.History(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return []chat.Message{}, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

// RecentSessions lists the user's most recently active sessions. limit is
// clamped to 1..MaxRecentSessions.
func (s *Service) RecentSessions(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit < 1 || limit > MaxRecentSessions {
		limit = MaxRecentSessions
	}

	ids, err := s.messages.RecentSessionIDs(ctx, userID, limit)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}
	return ids, nil
}
