package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

const messageColumns = `id, session_id, user_id, role, content, created_at`

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := store.CheckRole(msg); err != nil {
		return chat.Message{}, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	query :=
		`INSERT INTO messages (session_id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`

	var id int64
	err := s.q.QueryRowContext(ctx, query,
		msg.SessionID, msg.UserID, string(msg.Role), msg.Content, msg.CreatedAt).Scan(&id)
	if err != nil {
		return chat.Message{}, fmt.Errorf("db error: %w", err)
	}

	msg.ID = strconv.FormatInt(id, 10)
	return msg, nil
}

func (s *Store) RecentWindow(ctx context.Context, sessionID, userID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	query :=
		`SELECT ` + messageColumns + ` FROM (
		     SELECT ` + messageColumns + ` FROM messages
		     WHERE session_id = $1 AND user_id = $2
		     ORDER BY created_at DESC, id DESC
		     LIMIT $3
		 ) recent
		 ORDER BY created_at, id`

	rows, err := s.q.QueryContext(ctx, query, sessionID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanMessages(rows)
}

func (s *Store) History(ctx context.Context, sessionID, userID string) ([]chat.Message, error) {
	query :=
		`SELECT ` + messageColumns + ` FROM messages
		 WHERE session_id = $1 AND user_id = $2
		 ORDER BY created_at, id`

	rows, err := s.q.QueryContext(ctx, query, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanMessages(rows)
}

func (s *Store) RecentSessionIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	query :=
		`SELECT session_id FROM messages
		 WHERE user_id = $1 AND role = 'user'
		 GROUP BY session_id
		 ORDER BY MAX(created_at) DESC, MAX(id) DESC
		 LIMIT $2`

	rows, err := s.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	defer rows.Close()

	out := make([]chat.Message, 0)
	for rows.Next() {
		var (
			id   int64
			role string
			m    chat.Message
		)
		if err := rows.Scan(&id, &m.SessionID, &m.UserID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.Role = chat.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
