// Package store declares the persistence ports shared by every backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("already exists")
	ErrUnavailable = errors.New("database not connected")
	ErrInvalidRole = errors.New("invalid message role")
)

// CheckRole rejects a message whose role is not user, assistant or system.
func CheckRole(msg chat.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("role %q: %w", msg.Role, ErrInvalidRole)
	}
	return nil
}

// UserStore owns user records. Emails are compared after user.NormalizeEmail.
type UserStore interface {
	// CreateUser assigns ID and timestamps and returns ErrDuplicate when the
	// email is already registered.
	CreateUser(ctx context.Context, u *user.User) (*user.User, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	FindUserByID(ctx context.Context, id string) (*user.User, error)
}

// MessageStore owns conversation turns. Records are append-only.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error)
	// RecentWindow returns at most limit of the latest turns of a session,
	// oldest first.
	RecentWindow(ctx context.Context, sessionID, userID string, limit int) ([]chat.Message, error)
	// History returns every turn of a session, oldest first.
	History(ctx context.Context, sessionID, userID string) ([]chat.Message, error)
	// RecentSessionIDs lists sessions with at least one user turn, ordered by
	// their latest user turn, newest first.
	RecentSessionIDs(ctx context.Context, userID string, limit int) ([]string, error)
}

// Store is a complete backend.
type Store interface {
	UserStore
	MessageStore
	// Ping reports whether the backend is reachable; ErrUnavailable in
	// non-persistent mode.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
