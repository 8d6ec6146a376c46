package ui

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemchat/backend/internal/client/api"
	"github.com/zhouzirui/gemchat/backend/internal/client/state"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
)

type fakeAPI struct {
	meErr      error
	meName     string
	reply      string
	chatErr    error
	history    map[string][]api.HistoryMessage
	recent     []string
	sent       []string
	sentOnID   []string
	signinUser user.Profile
	health     api.Health
	healthErr  error
}

func (f *fakeAPI) Signup(_ context.Context, name, email, _ string) (api.Session, error) {
	return api.Session{Token: "tok", User: user.Profile{ID: "u1", Email: email, Name: name}}, nil
}

func (f *fakeAPI) Signin(context.Context, string, string) (api.Session, error) {
	return api.Session{Token: "tok", User: f.signinUser}, nil
}

func (f *fakeAPI) Me(context.Context, string) (user.Profile, error) {
	if f.meErr != nil {
		return user.Profile{}, f.meErr
	}
	return user.Profile{ID: "u1", Name: f.meName}, nil
}

func (f *fakeAPI) Chat(_ context.Context, _, sessionID, message string) (string, error) {
	f.sent = append(f.sent, message)
	f.sentOnID = append(f.sentOnID, sessionID)
	return f.reply, f.chatErr
}

func (f *fakeAPI) History(_ context.Context, _, sessionID string) ([]api.HistoryMessage, error) {
	return f.history[sessionID], nil
}

func (f *fakeAPI) Recent(context.Context, string) ([]string, error) {
	return f.recent, nil
}

func (f *fakeAPI) Health(context.Context) (api.Health, error) {
	return f.health, f.healthErr
}

func newController(t *testing.T, fake *fakeAPI, initial state.State) (*Controller, *state.Store, *bytes.Buffer) {
	t.Helper()
	store, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	if initial != (state.State{}) {
		require.NoError(t, store.Save(context.Background(), initial))
	}

	out := &bytes.Buffer{}
	c := NewController(fake, store, out)
	require.NoError(t, c.Boot(context.Background()))
	return c, store, out
}

func TestBoot_SetsNameOnlyFromValidToken(t *testing.T) {
	c, _, _ := newController(t, &fakeAPI{meName: "Ann"}, state.State{SessionID: "s1", Token: "tok", UserName: "stale"})
	assert.Equal(t, "Ann", c.State().UserName)

	c, _, _ = newController(t, &fakeAPI{meErr: &api.Error{Status: http.StatusForbidden, Message: "token expired"}},
		state.State{SessionID: "s1", Token: "tok", UserName: "stale"})
	// optimistic: still considered signed in, name untouched
	assert.True(t, c.State().Authenticated())
	assert.Equal(t, "stale", c.State().UserName)
}

func TestBoot_GeneratesSessionID(t *testing.T) {
	c, _, _ := newController(t, &fakeAPI{}, state.State{})
	assert.NotEmpty(t, c.State().SessionID)
	assert.False(t, c.State().Authenticated())
}

func TestSend_RendersReply(t *testing.T) {
	fake := &fakeAPI{reply: "hello"}
	c, _, out := newController(t, fake, state.State{SessionID: "s1", Token: "tok"})

	require.NoError(t, c.Send(context.Background(), "  hi  "))
	assert.Equal(t, []Line{{RoleUser, "hi"}, {RoleAssistant, "hello"}}, c.Transcript())
	assert.Equal(t, []string{"s1"}, fake.sentOnID)
	assert.Contains(t, out.String(), "assistant> hello")
}

func TestSend_Failures(t *testing.T) {
	fake := &fakeAPI{chatErr: &api.Error{Status: http.StatusInternalServerError, Message: "no response from model"}}
	c, _, _ := newController(t, fake, state.State{SessionID: "s1", Token: "tok"})

	require.Error(t, c.Send(context.Background(), "hi"))
	assert.Equal(t, Line{RoleAssistant, "Error: no response from model"}, c.Transcript()[1])

	fake.chatErr = errors.New("dial tcp: connection refused")
	require.Error(t, c.Send(context.Background(), "again"))
	assert.Equal(t, Line{RoleAssistant, "Network error"}, c.Transcript()[3])
}

func TestSend_RequiresSignIn(t *testing.T) {
	fake := &fakeAPI{}
	c, _, _ := newController(t, fake, state.State{SessionID: "s1"})

	require.Error(t, c.Send(context.Background(), "hi"))
	assert.Empty(t, fake.sent)
	assert.Equal(t, []Line{{RoleAssistant, "Please sign in to use the chat."}}, c.Transcript())
}

func TestSend_IgnoresBlank(t *testing.T) {
	fake := &fakeAPI{}
	c, _, _ := newController(t, fake, state.State{SessionID: "s1", Token: "tok"})

	require.NoError(t, c.Send(context.Background(), "   "))
	assert.Empty(t, fake.sent)
}

func TestOpen_ReplacesTranscript(t *testing.T) {
	fake := &fakeAPI{
		reply: "hello",
		history: map[string][]api.HistoryMessage{
			"old": {{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}},
		},
	}
	c, store, _ := newController(t, fake, state.State{SessionID: "s1", Token: "tok"})
	require.NoError(t, c.Send(context.Background(), "hi"))

	require.NoError(t, c.Open(context.Background(), "old"))
	assert.Equal(t, []Line{{RoleUser, "q"}, {RoleAssistant, "a"}}, c.Transcript())

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", st.SessionID)
}

func TestRecent_LabelsAndResolve(t *testing.T) {
	fake := &fakeAPI{recent: []string{"c", "b", "a"}}
	c, _, out := newController(t, fake, state.State{SessionID: "s1", Token: "tok"})

	ids, err := c.Recent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids)
	assert.Contains(t, out.String(), "Chat 3  (c)")
	assert.Contains(t, out.String(), "Chat 1  (a)")

	id, ok := c.ResolveRecent(3)
	require.True(t, ok)
	assert.Equal(t, "c", id)
	_, ok = c.ResolveRecent(4)
	assert.False(t, ok)
}

func TestNewSessionAndLogout(t *testing.T) {
	c, store, _ := newController(t, &fakeAPI{reply: "x"}, state.State{SessionID: "s1", Token: "tok", UserName: "Ann"})
	require.NoError(t, c.Send(context.Background(), "hi"))

	require.NoError(t, c.NewSession(context.Background()))
	assert.NotEqual(t, "s1", c.State().SessionID)
	assert.Empty(t, c.Transcript())

	sessionID := c.State().SessionID
	require.NoError(t, c.Logout(context.Background()))
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sessionID, st.SessionID)
	assert.Empty(t, st.Token)
	assert.Empty(t, st.UserName)
}

func TestSignupSavesToken(t *testing.T) {
	c, store, _ := newController(t, &fakeAPI{}, state.State{})

	require.NoError(t, c.Signup(context.Background(), "Ann", "a@x.com", "secret1"))
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", st.Token)
	assert.Equal(t, "Ann", st.UserName)
}

func TestAttach_AppendsMarkerToNextMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 2048), 0o644))

	fake := &fakeAPI{reply: "ok"}
	c, _, _ := newController(t, fake, state.State{SessionID: "s1", Token: "tok"})

	note, err := c.Attach(path)
	require.NoError(t, err)
	assert.Equal(t, "\n[Attached file: notes.txt (2 KB)]", note)

	require.NoError(t, c.Send(context.Background(), "see file"))
	require.NoError(t, c.Send(context.Background(), "next"))
	assert.Equal(t, []string{"see file\n[Attached file: notes.txt (2 KB)]", "next"}, fake.sent)

	_, err = c.Attach(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestAttachmentNoteRounds(t *testing.T) {
	assert.Equal(t, "\n[Attached file: a.bin (0 KB)]", AttachmentNote("a.bin", 100))
	assert.Equal(t, "\n[Attached file: a.bin (2 KB)]", AttachmentNote("a.bin", 1536))
}

func TestRunREPL(t *testing.T) {
	fake := &fakeAPI{
		reply:  "hello",
		recent: []string{"b", "a"},
		history: map[string][]api.HistoryMessage{
			"a": {{Role: "user", Content: "from a"}},
		},
	}
	c, _, out := newController(t, fake, state.State{SessionID: "s1", Token: "tok", UserName: "Ann"})

	input := strings.Join([]string{"hi", "/recent", "/open 1", "/bogus", "/quit", "never sent"}, "\n")
	require.NoError(t, c.RunREPL(context.Background(), strings.NewReader(input)))

	assert.Equal(t, []string{"hi"}, fake.sent)
	assert.Equal(t, "a", c.State().SessionID)
	assert.Equal(t, []Line{{RoleUser, "from a"}}, c.Transcript())
	assert.Contains(t, out.String(), "Unknown command: /bogus")
	assert.Contains(t, out.String(), "Bye!")
}

func TestStatus(t *testing.T) {
	fake := &fakeAPI{health: api.Health{Status: "ok", Database: "connected"}}
	c, _, out := newController(t, fake, state.State{SessionID: "s1", Token: "tok", UserName: "Ann"})

	c.Status(context.Background())
	assert.Contains(t, out.String(), "server: ok (database connected)")
	assert.Contains(t, out.String(), "user: Ann")
	assert.Contains(t, out.String(), "session: s1")

	out.Reset()
	fake.healthErr = errors.New("connection refused")
	require.NoError(t, c.Logout(context.Background()))
	c.Status(context.Background())
	assert.Contains(t, out.String(), "server: unreachable (connection refused)")
	assert.Contains(t, out.String(), "user: not signed in")
}

func TestResetStartsOver(t *testing.T) {
	c, store, _ := newController(t, &fakeAPI{reply: "x"}, state.State{SessionID: "s1", Token: "tok", UserName: "Ann"})
	require.NoError(t, c.Send(context.Background(), "hi"))

	require.NoError(t, c.Reset(context.Background()))
	assert.False(t, c.State().Authenticated())
	assert.Empty(t, c.State().UserName)
	assert.NotEmpty(t, c.State().SessionID)
	assert.NotEqual(t, "s1", c.State().SessionID)
	assert.Empty(t, c.Transcript())

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.State(), st)
}
