// Package auth registers users, checks credentials and issues bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/gemchat/backend/internal/common"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/observability"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

const minPasswordLength = 6

var (
	ErrDuplicateEmail     = errors.New("user already exists with this email")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Session is returned by signup and signin.
type Session struct {
	Token string       `json:"token"`
	User  user.Profile `json:"user"`
}

// Service implements the credential operations on top of a UserStore.
type Service struct {
	users      store.UserStore
	tokens     *TokenIssuer
	bcryptCost int
}

// NewService wires the user store and the token issuer.
func NewService(users store.UserStore, tokens *TokenIssuer, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

// Tokens exposes the issuer so transport middleware can verify requests.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Signup creates an account and signs the new user in.
func (s *Service) Signup(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = user.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return Session{}, common.NewValidationError("email, password, and name are required")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return Session{}, common.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return Session{}, common.NewValidationError("password must be at most 72 bytes")
		}
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.CreateUser(ctx, &user.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Session{}, ErrDuplicateEmail
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	observability.LoggerFromContext(ctx).Info("[auth] user registered", "user_id", created.ID)
	return s.newSession(created)
}

// Signin checks credentials. Unknown email and wrong password both surface
// as ErrInvalidCredentials.
func (s *Service) Signin(ctx context.Context, email, password string) (Session, error) {
	email = user.NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, common.NewValidationError("email and password are required")
	}

	logger := observability.LoggerFromContext(ctx)

	found, err := s.users.FindUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("[auth] signin for unknown email")
		return Session{}, ErrInvalidCredentials
	case err != nil:
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
		logger.Info("[auth] signin with wrong password", "user_id", found.ID)
		return Session{}, ErrInvalidCredentials
	}

	return s.newSession(found)
}

// Me returns the profile of an authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (user.Profile, error) {
	found, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return user.Profile{}, ErrUserNotFound
		}
		return user.Profile{}, fmt.Errorf("find user: %w", err)
	}
	return found.Profile(), nil
}

func (s *Service) newSession(u *user.User) (Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: u.Profile()}, nil
}
