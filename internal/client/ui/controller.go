// Package ui drives the terminal chat client: it owns the local identity,
// renders the transcript and calls the server.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhouzirui/gemchat/backend/internal/client/api"
	"github.com/zhouzirui/gemchat/backend/internal/client/state"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
)

// API is the part of api.Client the controller uses.
type API interface {
	Signup(ctx context.Context, name, email, password string) (api.Session, error)
	Signin(ctx context.Context, email, password string) (api.Session, error)
	Me(ctx context.Context, token string) (user.Profile, error)
	Chat(ctx context.Context, token, sessionID, message string) (string, error)
	History(ctx context.Context, token, sessionID string) ([]api.HistoryMessage, error)
	Recent(ctx context.Context, token string) ([]string, error)
	Health(ctx context.Context) (api.Health, error)
}

// StateStore persists the client identity.
type StateStore interface {
	Load(ctx context.Context) (state.State, error)
	Save(ctx context.Context, st state.State) error
	NewSession(ctx context.Context) (string, error)
	SetSession(ctx context.Context, id string) error
	ClearAuth(ctx context.Context) error
	Clear(ctx context.Context) error
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	signInRequired = "Please sign in to use the chat."
	networkError   = "Network error"
)

// Line is one rendered message.
type Line struct {
	Role    string
	Content string
}

// Controller holds the client state between commands.
type Controller struct {
	api   API
	store StateStore
	out   io.Writer

	state      state.State
	transcript []Line
	recent     []string
	attachment string
}

func NewController(client API, store StateStore, out io.Writer) *Controller {
	return &Controller{api: client, store: store, out: out}
}

// State returns the current identity.
func (c *Controller) State() state.State {
	return c.state
}

// Transcript returns the rendered log.
func (c *Controller) Transcript() []Line {
	return append([]Line(nil), c.transcript...)
}

// Boot loads local state and, if a token is held, validates it. The client
// proceeds whatever the outcome; only a successful check updates the name.
func (c *Controller) Boot(ctx context.Context) error {
	st, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	c.state = st

	if !st.Authenticated() {
		return nil
	}

	profile, err := c.api.Me(ctx, st.Token)
	if err != nil {
		return nil
	}
	name := profile.Name
	if name == "" {
		name = "User"
	}
	c.state.UserName = name
	return c.store.Save(ctx, c.state)
}

// Send posts text (plus any pending attachment note) on the current session
// and renders both sides. Failures render as a synthetic assistant line.
func (c *Controller) Send(ctx context.Context, text string) error {
	if !c.state.Authenticated() {
		c.render(RoleAssistant, signInRequired)
		return errors.New("not signed in")
	}

	text = strings.TrimSpace(text) + c.attachment
	if strings.TrimSpace(text) == "" {
		return nil
	}
	c.attachment = ""
	c.render(RoleUser, text)

	reply, err := c.api.Chat(ctx, c.state.Token, c.state.SessionID, text)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			c.render(RoleAssistant, "Error: "+apiErr.Message)
		} else {
			c.render(RoleAssistant, networkError)
		}
		return err
	}

	c.render(RoleAssistant, reply)
	return nil
}

// NewSession starts an empty conversation under a fresh id.
func (c *Controller) NewSession(ctx context.Context) error {
	id, err := c.store.NewSession(ctx)
	if err != nil {
		return err
	}
	c.state.SessionID = id
	c.transcript = nil
	fmt.Fprintf(c.out, "--- new chat %s ---\n", id)
	return nil
}

// Recent fetches and prints the recent sessions as "Chat N", newest having
// the highest number.
func (c *Controller) Recent(ctx context.Context) ([]string, error) {
	c.recent = nil
	if !c.state.Authenticated() {
		return nil, nil
	}

	ids, err := c.api.Recent(ctx, c.state.Token)
	if err != nil {
		return nil, err
	}
	c.recent = ids
	for i, id := range ids {
		fmt.Fprintf(c.out, "%s  (%s)\n", RecentLabel(len(ids), i), id)
	}
	return ids, nil
}

// RecentLabel names the i-th of n recent sessions.
func RecentLabel(n, i int) string {
	return fmt.Sprintf("Chat %d", n-i)
}

// ResolveRecent maps a "Chat N" number from the last listing to its id.
func (c *Controller) ResolveRecent(number int) (string, bool) {
	i := len(c.recent) - number
	if number < 1 || i < 0 || i >= len(c.recent) {
		return "", false
	}
	return c.recent[i], true
}

// Open makes sessionID current and replaces the log with its history.
func (c *Controller) Open(ctx context.Context, sessionID string) error {
	if err := c.store.SetSession(ctx, sessionID); err != nil {
		return err
	}
	c.state.SessionID = sessionID
	c.transcript = nil
	fmt.Fprintf(c.out, "--- chat %s ---\n", sessionID)

	msgs, err := c.api.History(ctx, c.state.Token, sessionID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		c.render(m.Role, m.Content)
	}
	return nil
}

func (c *Controller) Signup(ctx context.Context, name, email, password string) error {
	session, err := c.api.Signup(ctx, name, email, password)
	if err != nil {
		return err
	}
	return c.signedIn(ctx, session)
}

func (c *Controller) Signin(ctx context.Context, email, password string) error {
	session, err := c.api.Signin(ctx, email, password)
	if err != nil {
		return err
	}
	return c.signedIn(ctx, session)
}

func (c *Controller) signedIn(ctx context.Context, session api.Session) error {
	c.state.Token = session.Token
	c.state.UserName = session.User.Name
	if err := c.store.Save(ctx, c.state); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "signed in as %s\n", session.User.Name)
	return nil
}

// Logout forgets the token and name; the session id stays.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.store.ClearAuth(ctx); err != nil {
		return err
	}
	c.state.Token = ""
	c.state.UserName = ""
	c.transcript = nil
	c.recent = nil
	return nil
}

// Reset forgets the token, name and session id, then starts a fresh session.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	st, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.state = st
	c.transcript = nil
	c.recent = nil
	c.attachment = ""
	return nil
}

// Status prints server reachability and the local identity. An unreachable
// server is reported, not returned.
func (c *Controller) Status(ctx context.Context) {
	health, err := c.api.Health(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(c.out, "server: unreachable (%v)\n", err)
	case health.Database != "":
		fmt.Fprintf(c.out, "server: %s (database %s)\n", health.Status, health.Database)
	default:
		fmt.Fprintf(c.out, "server: %s\n", health.Status)
	}

	if c.state.Authenticated() {
		fmt.Fprintf(c.out, "user: %s\n", c.state.UserName)
	} else {
		fmt.Fprintln(c.out, "user: not signed in")
	}
	fmt.Fprintf(c.out, "session: %s\n", c.state.SessionID)
}

// Attach adds a note about the file at path to the next message. The file
// content is not uploaded.
func (c *Controller) Attach(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	note := AttachmentNote(filepath.Base(path), info.Size())
	c.attachment += note
	return note, nil
}

// AttachmentNote formats the marker appended to a message.
func AttachmentNote(name string, size int64) string {
	kb := int64(math.Round(float64(size) / 1024))
	return fmt.Sprintf("\n[Attached file: %s (%d KB)]", name, kb)
}

func (c *Controller) render(role, content string) {
	c.transcript = append(c.transcript, Line{Role: role, Content: content})
	label := "assistant"
	if role == RoleUser {
		label = "you"
		if c.state.UserName != "" {
			label = c.state.UserName
		}
	}
	fmt.Fprintf(c.out, "%s> %s\n", label, content)
}
