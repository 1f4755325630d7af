package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"otago-pg/internal/config"
	"otago-pg/pkg/types"
)

// MongoStore upserts records into a MongoDB collection keyed by source URL.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoStore connects, pings and ensures the source_url index.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	timeout := cfg.Timeout.Or(10 * time.Second)
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create source_url index: %w", err)
	}
	return &MongoStore{client: client, collection: collection, timeout: timeout}, nil
}

type mongoRecord struct {
	ID        string    `bson:"_id"`
	RunID     string    `bson:"run_id"`
	School    string    `bson:"school"`
	Level     string    `bson:"level"`
	ScrapedAt time.Time `bson:"scraped_at"`
	Errors    []string  `bson:"field_errors"`

	types.Record `bson:",inline"`
}

// SaveRecord replaces the document for the record's source URL.
func (m *MongoStore) SaveRecord(ctx context.Context, entry Entry) error {
	rec := entry.Outcome.Data
	if rec == nil {
		return nil
	}
	doc := mongoRecord{
		ID:        RecordID(rec.SourceURL),
		RunID:     entry.RunID,
		School:    entry.School,
		Level:     entry.Level,
		ScrapedAt: entry.ScrapedAt,
		Errors:    entry.Outcome.Errors.ErrList,
		Record:    *rec,
	}
	if doc.Errors == nil {
		doc.Errors = []string{}
	}
	if doc.ApplyURLs == nil {
		doc.ApplyURLs = []string{}
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, err := m.collection.ReplaceOne(writeCtx,
		bson.M{"source_url": rec.SourceURL},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", rec.SourceURL, err)
	}
	return nil
}

// Close disconnects the client.
func (m *MongoStore) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
