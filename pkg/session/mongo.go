package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection sheets are stored in.
const DefaultCollection = "sheets"

// MongoStore stores sheets in a MongoDB collection, one document per sheet
// keyed by sheet id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

// NewMongoStore connects to uri and uses collection coll of database db.
// The connection is verified with a ping, and a TTL index on expires_at is
// created so MongoDB removes expired sheets on its own.
func NewMongoStore(ctx context.Context, uri, db, coll string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewMongoStoreFromClient(client, db, coll)
	s.owned = true
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewMongoStoreFromClient wraps an existing client. Close does not
// disconnect a client it did not create.
func NewMongoStoreFromClient(client *mongo.Client, db, coll string) *MongoStore {
	if coll == "" {
		coll = DefaultCollection
	}
	return &MongoStore{client: client, coll: client.Database(db).Collection(coll)}
}

// EnsureIndexes creates the expiry index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create expiry index: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Sheet, error) {
	var sh Sheet
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&sh)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find sheet: %w", err)
	}
	// The TTL monitor runs about once a minute.
	if sh.IsExpired() {
		return nil, notFound(id)
	}
	return &sh, nil
}

func (s *MongoStore) Set(ctx context.Context, sh *Sheet) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": sh.ID}, sh, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save sheet: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	return nil
}

func (s *MongoStore) Cleanup(ctx context.Context) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return fmt.Errorf("delete expired sheets: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
