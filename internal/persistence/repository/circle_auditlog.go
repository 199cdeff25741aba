package repository

import (
	"context"
	"time"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLogRetention is enforced by a TTL index on timestamp.
const AuditLogRetention = 90 * 24 * time.Hour

type circleAuditLogRepository struct {
	db *mongo.Database
}

func NewCircleAuditLogRepository(db *mongo.Database) domain.CircleAuditRepository {
	return &circleAuditLogRepository{
		db: db,
	}
}

func (r *circleAuditLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) error {
	collection := r.db.Collection(db.CircleAuditLogsCollection)

	filter := bson.M{
		"timestamp": bson.M{
			"$lt": before,
		},
	}

	_, err := collection.DeleteMany(ctx, filter)
	return err
}

func (r *circleAuditLogRepository) GetByEventType(ctx context.Context, eventType domain.CircleEventType, from time.Time, to time.Time) ([]domain.CircleAuditLog, error) {
	collection := r.db.Collection(db.CircleAuditLogsCollection)

	filter := bson.M{
		"event_type": eventType,
		"timestamp": bson.M{
			"$gte": from,
			"$lte": to,
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	return r.find(ctx, collection, filter, opts)
}

func (r *circleAuditLogRepository) GetByCircleID(ctx context.Context, circleID string, limit int) ([]domain.CircleAuditLog, error) {
	collection := r.db.Collection(db.CircleAuditLogsCollection)

	filter := bson.M{"circle_id": circleID}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	return r.find(ctx, collection, filter, opts)
}

func (r *circleAuditLogRepository) find(ctx context.Context, collection *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]domain.CircleAuditLog, error) {
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := make([]domain.CircleAuditLog, 0)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

// Log inserts the entry. A redelivered event hits the _id index and is treated as stored.
func (r *circleAuditLogRepository) Log(ctx context.Context, log *domain.CircleAuditLog) error {
	if log == nil || log.CircleID == "" {
		return domain.ErrInvalidInput
	}
	collection := r.db.Collection(db.CircleAuditLogsCollection)

	_, err := collection.InsertOne(ctx, log)
	if db.IsDuplicateKey(err) {
		return nil
	}
	return err
}

func (r *circleAuditLogRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(db.CircleAuditLogsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "circle_id", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(AuditLogRetention.Seconds())),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
