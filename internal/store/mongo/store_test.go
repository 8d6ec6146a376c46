package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

// openTestStore connects to MONGODB_TEST_URL and isolates each test in its
// own database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URL")
	if uri == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}

	ctx := context.Background()
	dbName := fmt.Sprintf("gemchat_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, uri, dbName)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.users.Database().Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func TestMongoUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, &user.User{Email: "Ann@X.com", Name: "Ann", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", created.Email)

	_, err = s.CreateUser(ctx, &user.User{Email: "ann@x.com", Name: "Again", PasswordHash: "hash"})
	require.ErrorIs(t, err, store.ErrDuplicate)

	found, err := s.FindUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", found.PasswordHash)

	_, err = s.FindUserByID(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindUserByEmail(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMongoMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	add := func(session, userID string, role chat.Role, content string, offset time.Duration) {
		_, err := s.AppendMessage(ctx, chat.Message{
			SessionID: session, UserID: userID, Role: role, Content: content, CreatedAt: base.Add(offset),
		})
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		add("s1", "u1", chat.RoleUser, fmt.Sprintf("m%d", i), time.Duration(i)*time.Second)
	}
	add("s1", "u2", chat.RoleUser, "foreign", 10*time.Second)
	add("s2", "u1", chat.RoleUser, "later", 20*time.Second)
	add("s3", "u1", chat.RoleAssistant, "no user turn", 30*time.Second)

	_, err := s.AppendMessage(ctx, chat.Message{SessionID: "s1", UserID: "u1", Role: "bogus", Content: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidRole)

	window, err := s.RecentWindow(ctx, "s1", "u1", 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, []string{"m2", "m3", "m4"}, []string{window[0].Content, window[1].Content, window[2].Content})

	history, err := s.History(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Len(t, history, 5)

	ids, err := s.RecentSessionIDs(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, ids)
}
