// Package nop is the non-persistent backend used when no database is
// configured: writes are accepted and dropped, reads come back empty.
package nop

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

// Store implements store.Store without keeping anything.
type Store struct{}

var _ store.Store = Store{}

// New returns a non-persistent store.
func New() Store { return Store{} }

// CreateUser echoes the user back with a fresh identifier.
func (Store) CreateUser(_ context.Context, u *user.User) (*user.User, error) {
	created := *u
	created.ID = uuid.NewString()
	created.Email = user.NormalizeEmail(u.Email)
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	return &created, nil
}

// FindUserByEmail cannot answer without a database.
func (Store) FindUserByEmail(context.Context, string) (*user.User, error) {
	return nil, store.ErrUnavailable
}

// FindUserByID cannot answer without a database.
func (Store) FindUserByID(context.Context, string) (*user.User, error) {
	return nil, store.ErrUnavailable
}

// AppendMessage echoes the message back with a fresh identifier.
func (Store) AppendMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	if err := store.CheckRole(msg); err != nil {
		return chat.Message{}, err
	}
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg, nil
}

func (Store) RecentWindow(context.Context, string, string, int) ([]chat.Message, error) {
	return []chat.Message{}, nil
}

func (Store) History(context.Context, string, string) ([]chat.Message, error) {
	return []chat.Message{}, nil
}

func (Store) RecentSessionIDs(context.Context, string, int) ([]string, error) {
	return []string{}, nil
}

// Ping always reports ErrUnavailable.
func (Store) Ping(context.Context) error { return store.ErrUnavailable }

func (Store) Close(context.Context) error { return nil }
