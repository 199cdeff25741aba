package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/tracing"
	"github.com/hilthontt/haven/internal/persistence/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var allCircleStatuses = []domain.CircleStatus{
	domain.CircleScheduled,
	domain.CircleActive,
	domain.CircleEnded,
	domain.CircleCancelled,
}

type circleRepository struct {
	collection *mongo.Collection
	tracer     trace.Tracer
}

func NewCircleRepository(database *mongo.Database) domain.CircleRepository {
	return &circleRepository{
		collection: database.Collection(db.CirclesCollection),
		tracer:     tracing.GetTracer("haven/mongo/circles"),
	}
}

func (r *circleRepository) span(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "circles."+op, trace.WithAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.collection", db.CirclesCollection),
		attribute.String("circle.id", id),
	))
}

func (r *circleRepository) Create(ctx context.Context, circle *domain.Circle) (err error) {
	ctx, span := r.span(ctx, "Create", circle.ID)
	defer func() { tracing.End(span, err) }()

	if circle.Participants == nil {
		circle.Participants = []domain.Participant{}
	}
	if circle.Flags == nil {
		circle.Flags = []domain.Flag{}
	}

	_, err = r.collection.InsertOne(ctx, circle)
	switch {
	case err == nil:
		return nil
	case db.IsDuplicateKey(err, "join_code"):
		return domain.ErrDuplicateJoinCode
	case db.IsDuplicateKey(err, "channel_name"):
		return domain.ErrDuplicateChannel
	case db.IsDuplicateKey(err, "quota_holder"):
		return domain.ErrCircleQuotaExceeded
	case db.IsDuplicateKey(err):
		return domain.Conflictf("Circle %s already exists", circle.ID)
	}
	return err
}

func (r *circleRepository) GetByID(ctx context.Context, id string) (c *domain.Circle, err error) {
	ctx, span := r.span(ctx, "GetByID", id)
	defer func() { tracing.End(span, err) }()

	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *circleRepository) GetByJoinCode(ctx context.Context, joinCode string) (c *domain.Circle, err error) {
	ctx, span := r.span(ctx, "GetByJoinCode", "")
	defer func() { tracing.End(span, err) }()

	return r.findOne(ctx, bson.M{"join_code": joinCode})
}

func (r *circleRepository) findOne(ctx context.Context, filter bson.M) (*domain.Circle, error) {
	var circle domain.Circle
	if err := r.collection.FindOne(ctx, filter).Decode(&circle); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCircleNotFound
		}
		return nil, err
	}
	return &circle, nil
}

func (r *circleRepository) JoinCodeExists(ctx context.Context, joinCode string) (exists bool, err error) {
	ctx, span := r.span(ctx, "JoinCodeExists", "")
	defer func() { tracing.End(span, err) }()

	n, err := r.collection.CountDocuments(ctx, bson.M{"join_code": joinCode}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *circleRepository) HasOpenCircle(ctx context.Context, hostID string) (open bool, err error) {
	ctx, span := r.span(ctx, "HasOpenCircle", "")
	defer func() { tracing.End(span, err) }()

	filter := bson.M{
		"host_id": hostID,
		"status":  bson.M{"$in": domain.OpenStatuses},
	}
	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *circleRepository) List(ctx context.Context, filter domain.CircleFilter) (circles []domain.Circle, err error) {
	ctx, span := r.span(ctx, "List", "")
	defer func() { tracing.End(span, err) }()

	query := bson.M{}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.ViewerID != "" {
		query["$or"] = bson.A{
			bson.M{"is_private": false},
			bson.M{"host_id": filter.ViewerID},
			bson.M{"participants.user_id": filter.ViewerID},
		}
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	circles = make([]domain.Circle, 0)
	if err := cursor.All(ctx, &circles); err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *circleRepository) ListByStatus(ctx context.Context, status domain.CircleStatus) ([]domain.Circle, error) {
	return r.List(ctx, domain.CircleFilter{Statuses: []domain.CircleStatus{status}})
}

// AddParticipant appends p in a single conditional update: the circle must be open, must not
// already list p and must have room. When nothing matches, the stored circle tells which rule failed.
func (r *circleRepository) AddParticipant(ctx context.Context, id string, p domain.Participant) (c *domain.Circle, joined bool, err error) {
	ctx, span := r.span(ctx, "AddParticipant", id)
	defer func() { tracing.End(span, err) }()

	filter := bson.M{
		"_id":                  id,
		"status":               bson.M{"$in": domain.OpenStatuses},
		"participants.user_id": bson.M{"$ne": p.UserID},
		"$expr": bson.M{"$lt": bson.A{
			bson.M{"$size": bson.M{"$ifNull": bson.A{"$participants", bson.A{}}}},
			"$max_participants",
		}},
	}

	size := bson.M{"$size": bson.M{"$ifNull": bson.A{"$participants", bson.A{}}}}
	displayName := bson.M{"$cond": bson.A{
		"$anonymous_mode",
		bson.M{"$concat": bson.A{"User ", bson.M{"$toString": bson.M{"$add": bson.A{size, 1}}}}},
		bson.M{"$literal": p.DisplayName},
	}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"participants": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$participants", bson.A{}}},
				bson.A{bson.M{
					"user_id":      bson.M{"$literal": p.UserID},
					"joined_at":    p.JoinedAt,
					"is_muted":     p.IsMuted,
					"display_name": displayName,
				}},
			}},
		}}},
		{{Key: "$set", Value: bson.M{
			"current_participants": bson.M{"$size": "$participants"},
		}}},
	}

	updated, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, false, err
	}
	if updated != nil {
		return updated, true, nil
	}

	current, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, false, err
	}
	switch {
	case !current.Status.Open():
		return nil, false, domain.ErrCircleClosed
	case current.IsParticipant(p.UserID):
		return current, false, nil
	default:
		return nil, false, domain.ErrCircleFull
	}
}

func (r *circleRepository) RemoveParticipant(ctx context.Context, id, userID string) (c *domain.Circle, err error) {
	ctx, span := r.span(ctx, "RemoveParticipant", id)
	defer func() { tracing.End(span, err) }()

	filter := bson.M{"_id": id, "participants.user_id": userID}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"participants": bson.M{"$filter": bson.M{
				"input": "$participants",
				"cond":  bson.M{"$ne": bson.A{"$$this.user_id", bson.M{"$literal": userID}}},
			}},
		}}},
		{{Key: "$set", Value: bson.M{
			"current_participants": bson.M{"$size": "$participants"},
		}}},
	}

	updated, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}
	return r.findOne(ctx, bson.M{"_id": id})
}

// Transition only matches circles whose current status may move to next, so a concurrent
// End and expiry resolve to one write and one no-op.
func (r *circleRepository) Transition(ctx context.Context, id string, next domain.CircleStatus, at time.Time) (c *domain.Circle, changed bool, err error) {
	ctx, span := r.span(ctx, "Transition", id)
	span.SetAttributes(attribute.String("circle.status", string(next)))
	defer func() { tracing.End(span, err) }()

	from := make([]domain.CircleStatus, 0, len(allCircleStatuses))
	for _, s := range allCircleStatuses {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}

	set := bson.M{"status": next}
	update := bson.M{"$set": set}
	switch next {
	case domain.CircleActive:
		set["started_at"] = at
	case domain.CircleEnded, domain.CircleCancelled:
		set["ended_at"] = at
		update["$unset"] = bson.M{"quota_holder": ""}
	}

	updated, err := r.findOneAndUpdate(ctx, bson.M{"_id": id, "status": bson.M{"$in": from}}, update)
	if err != nil {
		return nil, false, err
	}
	if updated != nil {
		return updated, true, nil
	}

	current, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, false, err
	}
	if current.Status.Terminal() {
		return current, false, nil
	}
	return nil, false, domain.Conflictf("Circle cannot move from %s to %s", current.Status, next)
}

func (r *circleRepository) AppendFlag(ctx context.Context, id string, flag domain.Flag) (err error) {
	ctx, span := r.span(ctx, "AppendFlag", id)
	defer func() { tracing.End(span, err) }()

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$push": bson.M{"flags": flag}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrCircleNotFound
	}
	return nil
}

// findOneAndUpdate returns the updated circle, or nil when the filter matched nothing.
func (r *circleRepository) findOneAndUpdate(ctx context.Context, filter, update any) (*domain.Circle, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var circle domain.Circle
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&circle); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &circle, nil
}
