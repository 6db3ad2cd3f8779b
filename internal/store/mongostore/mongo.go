// Package mongostore implements the document store on a single MongoDB collection.
// Caller fields are kept under a nested "fields" document so index filters
// address them as fields.<name>.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
	"github.com/Shivanand-hulikatti/festreg/internal/store"
)

var _ store.Store = (*Store)(nil)

const collectionName = "documents"

type record struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	CreatedAt time.Time `bson:"created_at"`
	CreatedNS int64     `bson:"created_ns"`
	Fields    bson.Raw  `bson:"fields"`
}

// Store persists documents in the "documents" collection.
type Store struct {
	client *mongo.Client
	col    *mongo.Collection
	clock  store.Clock
}

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client.Database(cfg.Database))
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an already connected database. Call EnsureIndexes before use.
func New(db *mongo.Database) *Store {
	return &Store{col: db.Collection(collectionName), clock: store.SystemClock}
}

// EnsureIndexes creates the creation-order index and one partial index per
// entry in store.Indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "created_ns", Value: 1}},
		Options: options.Index().SetName("documents_kind_created"),
	}}
	for _, kind := range store.Kinds {
		for _, field := range store.Indexes[kind] {
			models = append(models, mongo.IndexModel{
				Keys: bson.D{{Key: "fields." + field, Value: 1}},
				Options: options.Index().
					SetName(fmt.Sprintf("%s_by_%s", kind, field)).
					SetPartialFilterExpression(bson.M{"kind": string(kind)}),
			})
		}
	}
	if _, err := s.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("documents indexes: %w", err)
	}
	return nil
}

// Close disconnects the client opened by Open.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// toBSON converts a JSON object to a BSON document, keeping integers as
// int32/int64 so they round-trip back to JSON numbers.
func toBSON(raw []byte) (bson.D, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &d); err != nil {
		return nil, fmt.Errorf("convert fields: %w", err)
	}
	return d, nil
}

func (r record) document() (store.Document, error) {
	fields, err := bson.MarshalExtJSON(r.Fields, false, false)
	if err != nil {
		return store.Document{}, fmt.Errorf("convert stored fields: %w", err)
	}
	return store.Document{
		ID:        r.ID,
		Kind:      store.Kind(r.Kind),
		CreatedAt: time.Unix(0, r.CreatedNS).UTC(),
		Fields:    json.RawMessage(fields),
	}, nil
}

// Insert stores fields under a fresh UUID.
func (s *Store) Insert(ctx context.Context, kind store.Kind, fields any) (string, error) {
	raw, err := store.MarshalFields(fields)
	if err != nil {
		return "", err
	}
	d, err := toBSON(raw)
	if err != nil {
		return "", err
	}
	now := s.clock()
	id := uuid.New().String()
	_, err = s.col.InsertOne(ctx, bson.D{
		{Key: "_id", Value: id},
		{Key: "kind", Value: string(kind)},
		{Key: "created_at", Value: now},
		{Key: "created_ns", Value: now.UnixNano()},
		{Key: "fields", Value: d},
	})
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", kind, err)
	}
	return id, nil
}

// Get returns a single document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*store.Document, error) {
	var r record
	if err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	d, err := r.document()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Patch sets each top-level key with $set on fields.<key>.
func (s *Store) Patch(ctx context.Context, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	d, err := toBSON(raw)
	if err != nil {
		return err
	}
	set := bson.D{}
	for _, e := range d {
		set = append(set, bson.E{Key: "fields." + e.Key, Value: e.Value})
	}
	if len(set) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("patch document: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Query filters on fields.<field> and sorts on fields.<orderBy> or creation
// order.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := bson.D{{Key: "kind", Value: string(q.Kind)}}
	if q.Field != "" {
		filter = append(filter, bson.E{Key: "fields." + q.Field, Value: q.Equals})
	}
	dir := 1
	if q.Order == store.Desc {
		dir = -1
	}
	sort := bson.D{}
	if q.OrderBy != "" {
		sort = append(sort, bson.E{Key: "fields." + q.OrderBy, Value: dir})
	}
	sort = append(sort, bson.E{Key: "created_ns", Value: dir})

	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	defer cur.Close(ctx)

	var docs []store.Document
	for cur.Next(ctx) {
		var r record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		d, err := r.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, cur.Err()
}
