package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolwatch/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoDBJournalRepository implements JournalRepository using MongoDB.
// Events are stored as documents keyed by event id.
type MongoDBJournalRepository struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoDBJournalRepository creates a new MongoDB journal repository.
func NewMongoDBJournalRepository(uri, database, collection string, logger *zap.Logger) (*MongoDBJournalRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "tool.id", Value: 1}}},
	})
	if err != nil {
		logger.Warn("failed to create journal indexes", zap.Error(err))
	}

	logger.Info("mongodb journal connected",
		zap.String("database", database),
		zap.String("collection", collection),
	)
	return &MongoDBJournalRepository{
		client:     client,
		db:         db,
		collection: coll,
		logger:     logger,
	}, nil
}

// eventFields is the document body of ev without its _id, which comes from
// the upsert filter.
func eventFields(ev model.Event) bson.M {
	return bson.M{
		"timestamp": ev.Timestamp,
		"kind":      ev.Kind,
		"user":      ev.User,
		"tool":      ev.Tool,
		"drawer":    ev.Drawer,
		"image_url": ev.ImageURL,
	}
}

// AppendEvent stores one event. Existing ids are left untouched.
func (r *MongoDBJournalRepository) AppendEvent(ctx context.Context, ev model.Event) error {
	filter := bson.M{"_id": ev.ID}
	update := bson.M{"$setOnInsert": eventFields(ev)}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// BatchAppendEvents stores many events with one unordered bulk write.
func (r *MongoDBJournalRepository) BatchAppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(events))
	for _, ev := range events {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": ev.ID}).
			SetUpdate(bson.M{"$setOnInsert": eventFields(ev)}).
			SetUpsert(true))
	}

	res, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to batch append: %w", err)
	}
	r.logger.Debug("journal batch written",
		zap.Int("events", len(events)),
		zap.Int64("inserted", res.UpsertedCount),
	)
	return nil
}

// ListEvents returns stored events newest first.
func (r *MongoDBJournalRepository) ListEvents(ctx context.Context, limit int) ([]model.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []model.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// DeleteEventsBefore removes events older than cutoff.
func (r *MongoDBJournalRepository) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff.Unix()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return result.DeletedCount, nil
}

// GetStats returns statistics about the journal collection.
func (r *MongoDBJournalRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["status"] = "connected"

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}
	stats["total_events"] = count

	var last model.Event
	err = r.collection.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})).Decode(&last)
	switch {
	case err == nil:
		stats["last_event"] = last.Time().UTC()
	case !errors.Is(err, mongo.ErrNoDocuments):
		r.logger.Warn("failed to read last journal event", zap.Error(err))
	}

	result := r.db.RunCommand(ctx, bson.D{{Key: "collStats", Value: r.collection.Name()}})
	var collStats bson.M
	if err := result.Decode(&collStats); err == nil {
		if size, ok := collStats["size"]; ok {
			stats["db_size_bytes"] = size
		}
	}

	return stats, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBJournalRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Ensure MongoDBJournalRepository implements JournalRepository
var _ JournalRepository = (*MongoDBJournalRepository)(nil)
