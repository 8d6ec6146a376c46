package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

const uniqueViolation = "23505"

func newUserID() string { return uuid.NewString() }

func (s *Store) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	created := *u
	created.ID = s.newID()
	created.Email = user.NormalizeEmail(u.Email)
	created.CreatedAt = s.now()
	created.UpdatedAt = created.CreatedAt

	query :=
		`INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.q.ExecContext(ctx, query,
		created.ID, created.Email, created.PasswordHash, created.Name, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("user %s: %w", created.Email, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &created, nil
}

func (s *Store) findUser(ctx context.Context, query string, arg string) (*user.User, error) {
	u := &user.User{}
	err := s.q.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.findUser(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at FROM users WHERE email = $1`,
		user.NormalizeEmail(email))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*user.User, error) {
	return s.findUser(ctx,
		`SELECT id, email, password_hash, name, created_at, updated_at FROM users WHERE id = $1`,
		id)
}
