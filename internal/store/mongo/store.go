// Package mongo persists users and messages in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/zhouzirui/gemchat/backend/internal/model/chat"
	"github.com/zhouzirui/gemchat/backend/internal/model/user"
	"github.com/zhouzirui/gemchat/backend/internal/store"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

type userDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password"`
	Name      string        `bson:"name"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d userDocument) toModel() *user.User {
	return &user.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.Password,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type messageDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	SessionID string        `bson:"sessionId"`
	UserID    string        `bson:"userId"`
	Role      string        `bson:"role"`
	Content   string        `bson:"content"`
	CreatedAt time.Time     `bson:"createdAt"`
}

func (d messageDocument) toModel() chat.Message {
	return chat.Message{
		ID:        d.ID.Hex(),
		SessionID: d.SessionID,
		UserID:    d.UserID,
		Role:      chat.Role(d.Role),
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
}

// Store implements store.Store on two collections of one database.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and prepares indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, client.Database(database))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an already connected database.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique email index and the message lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "sessionId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "role", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create messages indexes: %w", err)
	}
	return nil
}

// CreateUser inserts a user; the unique index turns a clash into ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	now := s.now()
	doc := userDocument{
		ID:        bson.NewObjectID(),
		Email:     user.NormalizeEmail(u.Email),
		Password:  u.PasswordHash,
		Name:      u.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user %s: %w", doc.Email, store.ErrDuplicate)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) findUser(ctx context.Context, filter bson.D) (*user.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: user.NormalizeEmail(email)}})
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*user.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return s.findUser(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := store.CheckRole(msg); err != nil {
		return chat.Message{}, err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	doc := messageDocument{
		ID:        bson.NewObjectID(),
		SessionID: msg.SessionID,
		UserID:    msg.UserID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}

	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return chat.Message{}, fmt.Errorf("db error: %w", err)
	}
	return doc.toModel(), nil
}

func conversationFilter(sessionID, userID string) bson.D {
	return bson.D{{Key: "sessionId", Value: sessionID}, {Key: "userId", Value: userID}}
}

func (s *Store) findMessages(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]chat.Message, error) {
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	out := make([]chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// RecentWindow reads the latest turns newest first and flips them.
func (s *Store) RecentWindow(ctx context.Context, sessionID, userID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	msgs, err := s.findMessages(ctx, conversationFilter(sessionID, userID), opts)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) History(ctx context.Context, sessionID, userID string) ([]chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return s.findMessages(ctx, conversationFilter(sessionID, userID), opts)
}

// RecentSessionIDs groups the user's own turns by session and keeps the
// newest limit groups.
func (s *Store) RecentSessionIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "userId", Value: userID},
			{Key: "role", Value: string(chat.RoleUser)},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sessionId"},
			{Key: "lastActive", Value: bson.D{{Key: "$max", Value: "$createdAt"}}},
			{Key: "lastID", Value: bson.D{{Key: "$max", Value: "$_id"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastActive", Value: -1}, {Key: "lastID", Value: -1}}}},
		{{Key: "$limit", Value: int64(limit)}},
	}

	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	var rows []struct {
		SessionID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.SessionID)
	}
	return ids, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
