package user

import (
	"strings"
	"time"
)

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a user returned to clients.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Profile strips credentials from the user.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name}
}

// NormalizeEmail folds an address to the form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
