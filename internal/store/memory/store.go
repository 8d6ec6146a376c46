// Package memory keeps users and messages in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

type entry struct {
	seq int64
	msg chat.Message
}

// Store implements store.Store with maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User
	byEmail  map[string]string
	messages map[string][]entry
	seq      int64
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[string]user.User),
		byEmail:  make(map[string]string),
		messages: make(map[string][]entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func conversationKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// CreateUser registers a user, rejecting an email that is already taken.
func (s *Store) CreateUser(_ context.Context, u *user.User) (*user.User, error) {
	email := user.NormalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, fmt.Errorf("user %s: %w", email, store.ErrDuplicate)
	}

	created := *u
	created.ID = uuid.NewString()
	created.Email = email
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt

	s.users[created.ID] = created
	s.byEmail[email] = created.ID
	return &created, nil
}

// FindUserByEmail looks a user up by normalized email.
func (s *Store) FindUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := s.users[id]
	return &found, nil
}

// FindUserByID looks a user up by identifier.
func (s *Store) FindUserByID(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &found, nil
}

// AppendMessage stores a new turn.
func (s *Store) AppendMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	if err := store.CheckRole(msg); err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg.ID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	key := conversationKey(msg.UserID, msg.SessionID)
	s.messages[key] = append(s.messages[key], entry{seq: s.seq, msg: msg})
	return msg, nil
}

// RecentWindow returns the last limit turns of a session in ascending order.
func (s *Store) RecentWindow(_ context.Context, sessionID, userID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.messages[conversationKey(userID, sessionID)]
	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}
	return copyMessages(entries[start:]), nil
}

// History returns the whole session in ascending order.
func (s *Store) History(_ context.Context, sessionID, userID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyMessages(s.messages[conversationKey(userID, sessionID)]), nil
}

// RecentSessionIDs orders the user's sessions by their latest user turn.
func (s *Store) RecentSessionIDs(_ context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	s.mu.RLock()
	type activity struct {
		sessionID string
		last      int64
	}
	var sessions []activity
	for _, entries := range s.messages {
		if len(entries) == 0 || entries[0].msg.UserID != userID {
			continue
		}
		var last int64
		for _, e := range entries {
			if e.msg.Role == chat.RoleUser && e.seq > last {
				last = e.seq
			}
		}
		if last > 0 {
			sessions = append(sessions, activity{sessionID: entries[0].msg.SessionID, last: last})
		}
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].last > sessions[j].last })
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	ids := make([]string, 0, len(sessions))
	for _, a := range sessions {
		ids = append(ids, a.sessionID)
	}
	return ids, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func copyMessages(entries []entry) []chat.Message {
	out := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.msg)
	}
	return out
}
