package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mubureterrance/webscraper-scaffolding/internal/types"
)

// insertOner is the part of *mongo.Collection the sink needs.
type insertOner interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoSink stores each result as one document keyed by its run ID.
type MongoSink struct {
	client     *mongo.Client
	collection insertOner
	namespace  string
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoSink connects to MongoDB and returns a sink for database.collection.
func NewMongoSink(uri, database, collection string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
		namespace:  database + "." + collection,
		logger:     logger.With("component", "mongo_sink"),
	}, nil
}

func (s *MongoSink) Name() string { return "mongodb" }

func (s *MongoSink) Persist(ctx context.Context, result *types.CrawlResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, mongoDocument(result)); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("mongodb insert: %w", err)}
	}

	s.count++
	location := fmt.Sprintf("mongodb:%s/%s", s.namespace, result.RunID)
	s.logger.Info("result stored in mongodb", "location", location, "items", result.TotalItems)
	return location, nil
}

func (s *MongoSink) Close() error {
	s.logger.Info("mongodb sink closing", "documents", s.count)
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// mongoDocument maps a result onto the stored document shape.
func mongoDocument(result *types.CrawlResult) bson.M {
	items := make([]bson.M, len(result.Items))
	for i, item := range result.Items {
		doc := make(bson.M, len(item))
		for k, v := range item {
			doc[k] = v
		}
		items[i] = doc
	}
	return bson.M{
		"_id":         result.RunID,
		"site":        result.Site,
		"timestamp":   result.Timestamp,
		"url":         result.URL,
		"total_items": result.TotalItems,
		"partial":     result.Partial,
		"fields":      result.Fields,
		"items":       items,
	}
}

// --- Multi-Sink Fan-Out ---

// MultiSink persists each result to several sinks in order.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a sink that fans out to sinks.
func NewMultiSink(sinks []Sink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

// Persist writes to every sink even when an earlier one fails, and returns
// the successful locations joined by ", " along with the first error.
func (s *MultiSink) Persist(ctx context.Context, result *types.CrawlResult) (string, error) {
	var (
		locations []string
		firstErr  error
	)
	for _, sink := range s.sinks {
		loc, err := sink.Persist(ctx, result)
		if err != nil {
			s.logger.Error("sink persist failed", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		locations = append(locations, loc)
	}
	return strings.Join(locations, ", "), firstErr
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
