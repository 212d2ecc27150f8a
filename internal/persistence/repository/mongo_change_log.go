package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoChangeLog is a domain.ChangeLog backed by a Mongo collection. Live
// delivery uses change streams, which need a replica set.
type MongoChangeLog struct {
	db     *mongo.Database
	buffer int
}

func NewMongoChangeLogRepository(database *mongo.Database, buffer int) *MongoChangeLog {
	if buffer <= 0 {
		buffer = 64
	}
	return &MongoChangeLog{
		db:     database,
		buffer: buffer,
	}
}

func (r *MongoChangeLog) collection() *mongo.Collection {
	return r.db.Collection(db.ChangeRecordsCollection)
}

// Probe reports ErrStoreUnavailable until the collection has been created,
// normally by the migrate command.
func (r *MongoChangeLog) Probe(ctx context.Context) error {
	names, err := r.db.ListCollectionNames(ctx, bson.M{"name": db.ChangeRecordsCollection})
	if err != nil {
		return translateMongoErr("list collections", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: collection %s does not exist", domain.ErrStoreUnavailable, db.ChangeRecordsCollection)
	}
	return nil
}

func (r *MongoChangeLog) Append(ctx context.Context, record *domain.ChangeRecord) error {
	if record == nil || record.ID == "" || record.ProjectID == "" || record.ActorID == "" {
		return domain.ErrInvalidInput
	}

	_, err := r.collection().InsertOne(ctx, record)
	return translateMongoErr("inserting change record", err)
}

// List sorts on _id: record ids are ULIDs, so that is append order.
func (r *MongoChangeLog) List(ctx context.Context, projectID string, limit int) ([]domain.ChangeRecord, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	filter := bson.M{"project_id": projectID}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, translateMongoErr("listing change records", err)
	}
	defer cursor.Close(ctx)

	records := make([]domain.ChangeRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, translateMongoErr("decoding change records", err)
	}

	// newest-first from the query; callers want oldest-first
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (r *MongoChangeLog) LastCounter(ctx context.Context, projectID, actorID string) (uint64, error) {
	filter := bson.M{"project_id": projectID, "actor_id": actorID}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "actor_counter", Value: -1}}).
		SetProjection(bson.M{"actor_counter": 1})

	var doc struct {
		ActorCounter uint64 `bson:"actor_counter"`
	}
	err := r.collection().FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, translateMongoErr("reading actor counter", err)
	}
	return doc.ActorCounter, nil
}

func (r *MongoChangeLog) Subscribe(ctx context.Context, projectID string) (domain.ChangeSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType":           "insert",
			"fullDocument.project_id": projectID,
		}}},
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := r.collection().Watch(streamCtx, pipeline)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening change stream: %w: %v", domain.ErrStoreUnavailable, err)
	}

	sub := &mongoChangeSubscription{
		ch:     make(chan domain.ChangeRecord, r.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.pump(streamCtx, stream)

	return sub, nil
}

// EnsureIndexes creates the query indexes and, when retentionDays > 0, a TTL
// index on timestamp.
func (r *MongoChangeLog) EnsureIndexes(ctx context.Context, retentionDays int) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "project_id", Value: 1},
				{Key: "_id", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "project_id", Value: 1},
				{Key: "actor_id", Value: 1},
				{Key: "actor_counter", Value: -1},
			},
		},
	}
	if retentionDays > 0 {
		ttl := int32((time.Duration(retentionDays) * 24 * time.Hour).Seconds())
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttl),
		})
	}

	_, err := r.collection().Indexes().CreateMany(ctx, indexes)
	return err
}

type mongoChangeSubscription struct {
	ch     chan domain.ChangeRecord
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *mongoChangeSubscription) pump(ctx context.Context, stream *mongo.ChangeStream) {
	defer close(s.done)
	defer close(s.ch)
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var event struct {
			FullDocument domain.ChangeRecord `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			continue
		}
		select {
		case s.ch <- event.FullDocument:
		case <-ctx.Done():
			return
		}
	}
}

func (s *mongoChangeSubscription) Changes() <-chan domain.ChangeRecord {
	return s.ch
}

func (s *mongoChangeSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func translateMongoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
