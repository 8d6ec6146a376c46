// Package state keeps the terminal client's identity in a local sqlite file:
// the current session id and, once signed in, the bearer token and display
// name.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/gemchat/backend/internal/client/state/migrations"
)

const (
	keySessionID = "sessionId"
	keyToken     = "token"
	keyUserName  = "userName"
)

// State is the client identity.
type State struct {
	SessionID string
	Token     string
	UserName  string
}

// Authenticated reports whether a token is held.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations creates the metadata table.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Store loads and saves State.
type Store struct {
	db       *sql.DB
	metadata *MetadataRepository
	newID    func() string
}

// Open opens (creating when needed) the sqlite file at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, metadata: NewMetadataRepository(db), newID: uuid.NewString}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the state, generating and saving a session id when none exists.
func (s *Store) Load(ctx context.Context) (State, error) {
	var st State
	for key, dst := range map[string]*string{
		keySessionID: &st.SessionID,
		keyToken:     &st.Token,
		keyUserName:  &st.UserName,
	} {
		v, err := s.metadata.Get(ctx, key)
		if err != nil {
			return State{}, err
		}
		*dst = string(v)
	}

	if st.SessionID == "" {
		id, err := s.NewSession(ctx)
		if err != nil {
			return State{}, err
		}
		st.SessionID = id
	}
	return st, nil
}

// Save writes every non-empty field and removes the empty ones.
func (s *Store) Save(ctx context.Context, st State) error {
	for key, value := range map[string]string{
		keySessionID: st.SessionID,
		keyToken:     st.Token,
		keyUserName:  st.UserName,
	} {
		var err error
		if value == "" {
			err = s.metadata.Delete(ctx, key)
		} else {
			err = s.metadata.Set(ctx, key, []byte(value))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// NewSession stores and returns a fresh session id.
func (s *Store) NewSession(ctx context.Context) (string, error) {
	id := s.newID()
	if err := s.metadata.Set(ctx, keySessionID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// SetSession makes id the current session.
func (s *Store) SetSession(ctx context.Context, id string) error {
	return s.metadata.Set(ctx, keySessionID, []byte(id))
}

// ClearAuth drops the token and display name but keeps the session id.
func (s *Store) ClearAuth(ctx context.Context) error {
	if err := s.metadata.Delete(ctx, keyToken); err != nil {
		return err
	}
	return s.metadata.Delete(ctx, keyUserName)
}

// Clear removes everything.
func (s *Store) Clear(ctx context.Context) error {
	return s.metadata.Clear(ctx)
}
