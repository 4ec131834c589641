// Package mongo implements store.Backend on MongoDB. Each tenant's documents
// live in the tenant's own database; the entity id is stored as _id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/ratekl/api/internal/store"
)

const idKey = "_id"

// Backend is a MongoDB store.Backend.
type Backend struct {
	client *mongo.Client
	logger *slog.Logger
}

// Connect dials MongoDB and verifies the primary is reachable.
func Connect(ctx context.Context, uri string, logger *slog.Logger) (*Backend, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, logger), nil
}

// New wraps an existing client.
func New(client *mongo.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{client: client, logger: logger.With("component", "mongo")}
}

func (b *Backend) collection(c store.Collection) *mongo.Collection {
	return b.client.Database(c.Database).Collection(c.Name)
}

// EnsureCollection creates the collection when missing and its indexes.
func (b *Backend) EnsureCollection(ctx context.Context, c store.Collection, indexes []store.Index) error {
	db := b.client.Database(c.Database)
	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: c.Name}})
	if err != nil {
		return fmt.Errorf("list collections %s.%s: %w", c.Database, c.Name, err)
	}
	if len(names) == 0 {
		if err := db.CreateCollection(ctx, c.Name); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("create collection %s.%s: %w", c.Database, c.Name, err)
		}
		b.logger.Info("collection created", "database", c.Database, "collection", c.Name)
	}
	models := make([]mongo.IndexModel, 0, len(indexes))
	for _, idx := range indexes {
		if idx.Field == c.IDField {
			continue
		}
		opts := options.Index()
		if idx.Unique {
			opts.SetUnique(true)
		}
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.Field, Value: 1}},
			Options: opts,
		})
	}
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(c.Name).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes %s.%s: %w", c.Database, c.Name, err)
	}
	return nil
}

// Insert stores documents. Documents without an id receive a generated
// string id, the same way the memory store assigns them.
func (b *Backend) Insert(ctx context.Context, c store.Collection, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	payload := make([]any, 0, len(docs))
	for _, doc := range docs {
		if id := doc[c.IDField]; id == nil || id == "" {
			doc[c.IDField] = uuid.NewString()
		}
		payload = append(payload, toBSON(c, doc))
	}
	if _, err := b.collection(c).InsertMany(ctx, payload); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
		}
		return fmt.Errorf("insert %s.%s: %w", c.Database, c.Name, err)
	}
	return nil
}

// Find runs a query with ordering, pagination and projection.
func (b *Backend) Find(ctx context.Context, c store.Collection, filter store.Filter) ([]store.Document, error) {
	query, err := Translate(filter.Where, c.IDField)
	if err != nil {
		return nil, err
	}
	opts := options.Find()
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Skip > 0 {
		opts.SetSkip(int64(filter.Skip))
	}
	if len(filter.Order) > 0 {
		sortDoc := bson.D{}
		for _, key := range filter.Order {
			dir := 1
			if key.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: fieldName(key.Field, c.IDField), Value: dir})
		}
		opts.SetSort(sortDoc)
	}
	if fields := filter.Projection(c.IDField); fields != nil {
		projection := bson.D{}
		for _, f := range fields {
			projection = append(projection, bson.E{Key: fieldName(f, c.IDField), Value: 1})
		}
		opts.SetProjection(projection)
	}

	cursor, err := b.collection(c).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s.%s: %w", c.Database, c.Name, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", c.Database, c.Name, err)
	}
	out := make([]store.Document, 0, len(raw))
	for _, doc := range raw {
		out = append(out, fromBSON(c, doc))
	}
	return out, nil
}

// Count counts matching documents.
func (b *Backend) Count(ctx context.Context, c store.Collection, where store.Where) (int64, error) {
	query, err := Translate(where, c.IDField)
	if err != nil {
		return 0, err
	}
	n, err := b.collection(c).CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", c.Database, c.Name, err)
	}
	return n, nil
}

// UpdateMany applies a $set of data to matching documents and returns the
// number matched.
func (b *Backend) UpdateMany(ctx context.Context, c store.Collection, where store.Where, data store.Document) (int64, error) {
	query, err := Translate(where, c.IDField)
	if err != nil {
		return 0, err
	}
	set := bson.M{}
	for k, v := range data {
		if k == c.IDField || k == idKey {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return 0, nil
	}
	res, err := b.collection(c).UpdateMany(ctx, query, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
		}
		return 0, fmt.Errorf("update %s.%s: %w", c.Database, c.Name, err)
	}
	return res.MatchedCount, nil
}

// Replace swaps the whole document stored under id.
func (b *Backend) Replace(ctx context.Context, c store.Collection, id any, doc store.Document) error {
	replacement := toBSON(c, doc)
	delete(replacement, idKey)
	res, err := b.collection(c).ReplaceOne(ctx, bson.M{idKey: matchID(id)}, replacement)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
		}
		return fmt.Errorf("replace %s.%s: %w", c.Database, c.Name, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteMany removes matching documents.
func (b *Backend) DeleteMany(ctx context.Context, c store.Collection, where store.Where) (int64, error) {
	query, err := Translate(where, c.IDField)
	if err != nil {
		return 0, err
	}
	res, err := b.collection(c).DeleteMany(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete %s.%s: %w", c.Database, c.Name, err)
	}
	return res.DeletedCount, nil
}

// Ping verifies connectivity with the primary.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 48
	}
	return false
}

func fieldName(field, idField string) string {
	if field == idField {
		return idKey
	}
	return field
}

func toBSON(c store.Collection, doc store.Document) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if k == c.IDField {
			if v == nil || v == "" {
				continue
			}
			out[idKey] = v
			continue
		}
		out[k] = v
	}
	return out
}

func fromBSON(c store.Collection, raw bson.M) store.Document {
	out := make(store.Document, len(raw))
	for k, v := range raw {
		if k == idKey {
			out[c.IDField] = normalize(v)
			continue
		}
		out[k] = normalize(v)
	}
	return out
}

// normalize converts driver types into the plain Go values the repository
// layer works with.
func normalize(v any) any {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC()
	case bson.Decimal128:
		return val.String()
	case bson.Binary:
		return val.Data
	case bson.D:
		m := make(map[string]any, len(val))
		for _, elem := range val {
			m[elem.Key] = normalize(elem.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = normalize(item)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = normalize(item)
		}
		return m
	case bson.A:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = normalize(item)
		}
		return arr
	case []any:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = normalize(item)
		}
		return arr
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	}
	return v
}
