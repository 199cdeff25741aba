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

var allSessionStatuses = []domain.SessionStatus{
	domain.SessionWaiting,
	domain.SessionStarting,
	domain.SessionActive,
	domain.SessionPaused,
	domain.SessionEnded,
}

// gameSessionRepository applies every mutation as one conditional document update. Game data
// merges run as aggregation pipelines so user supplied values are never read as operators.
type gameSessionRepository struct {
	collection *mongo.Collection
	tracer     trace.Tracer
}

func NewGameSessionRepository(database *mongo.Database) domain.GameSessionRepository {
	return &gameSessionRepository{
		collection: database.Collection(db.GameSessionsCollection),
		tracer:     tracing.GetTracer("haven/mongo/game_sessions"),
	}
}

func (r *gameSessionRepository) span(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "game_sessions."+op, trace.WithAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.collection", db.GameSessionsCollection),
		attribute.String("session.id", id),
	))
}

// FindOrCreateOpen upserts on the open_room_id unique index. Two racing inserts leave one
// duplicate key error, after which the winner's session is read back.
func (r *gameSessionRepository) FindOrCreateOpen(ctx context.Context, session *domain.GameSession) (found *domain.GameSession, created bool, err error) {
	ctx, span := r.span(ctx, "FindOrCreateOpen", session.ID)
	span.SetAttributes(attribute.String("circle.id", session.RoomID))
	defer func() { tracing.End(span, err) }()

	doc, err := toDocument(session)
	if err != nil {
		return nil, false, err
	}
	delete(doc, "open_room_id")

	filter := bson.M{"open_room_id": session.RoomID}
	update := bson.M{"$setOnInsert": doc}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	for attempt := 0; attempt < 2; attempt++ {
		var stored domain.GameSession
		err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
		if err == nil {
			return &stored, stored.ID == session.ID, nil
		}
		if !db.IsDuplicateKey(err) {
			return nil, false, err
		}
	}
	return nil, false, err
}

func (r *gameSessionRepository) GetByID(ctx context.Context, id string) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "GetByID", id)
	defer func() { tracing.End(span, err) }()

	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *gameSessionRepository) GetOpenByRoomID(ctx context.Context, roomID string) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "GetOpenByRoomID", "")
	span.SetAttributes(attribute.String("circle.id", roomID))
	defer func() { tracing.End(span, err) }()

	return r.findOne(ctx, bson.M{"open_room_id": roomID})
}

func (r *gameSessionRepository) SetStatus(ctx context.Context, id string, next domain.SessionStatus, at time.Time) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "SetStatus", id)
	span.SetAttributes(attribute.String("session.status", string(next)))
	defer func() { tracing.End(span, err) }()

	from := make([]domain.SessionStatus, 0, len(allSessionStatuses))
	for _, st := range allSessionStatuses {
		if st.CanTransition(next) {
			from = append(from, st)
		}
	}

	set := bson.M{"status": next}
	var unset bson.A
	switch next {
	case domain.SessionActive:
		set["started_at"] = bson.M{"$ifNull": bson.A{"$started_at", at}}
	case domain.SessionEnded:
		set["ended_at"] = at
		unset = bson.A{"open_room_id"}
	}

	update := mongo.Pipeline{{{Key: "$set", Value: set}}}
	if len(unset) > 0 {
		update = append(update, bson.D{{Key: "$unset", Value: unset}})
	}

	return r.apply(ctx, id, bson.M{"status": bson.M{"$in": from}}, update, domain.ErrInvalidTransition)
}

func (r *gameSessionRepository) Start(ctx context.Context, id string, at time.Time, gameData map[string]any) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "Start", id)
	defer func() { tracing.End(span, err) }()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status":     domain.SessionActive,
			"started_at": at,
			"round":      1,
			"phase":      domain.PhaseSetup,
			"game_data":  mergeGameData(gameData),
		}}},
	}
	cond := bson.M{"status": bson.M{"$in": bson.A{domain.SessionWaiting, domain.SessionStarting}}}

	return r.apply(ctx, id, cond, update, domain.ErrInvalidTransition)
}

func (r *gameSessionRepository) SetRoles(ctx context.Context, id string, roles map[string]string) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "SetRoles", id)
	defer func() { tracing.End(span, err) }()

	branches := make(bson.A, 0, len(roles))
	for userID, role := range roles {
		branches = append(branches, bson.M{
			"case": bson.M{"$eq": bson.A{"$$p.user_id", bson.M{"$literal": userID}}},
			"then": bson.M{"$literal": role},
		})
	}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"players": bson.M{"$map": bson.M{
				"input": "$players",
				"as":    "p",
				"in": bson.M{"$mergeObjects": bson.A{
					"$$p",
					bson.M{"role": bson.M{"$switch": bson.M{
						"branches": branches,
						"default":  "$$p.role",
					}}},
				}},
			}},
		}}},
	}

	return r.apply(ctx, id, bson.M{}, update, nil)
}

func (r *gameSessionRepository) SetVote(ctx context.Context, id, voterID, targetID string) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "SetVote", id)
	defer func() { tracing.End(span, err) }()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"votes": bson.M{"$setField": bson.M{
				"field": bson.M{"$literal": voterID},
				"input": bson.M{"$ifNull": bson.A{"$votes", bson.M{}}},
				"value": bson.M{"$literal": targetID},
			}},
		}}},
	}

	return r.apply(ctx, id, bson.M{"players.user_id": voterID}, update, domain.ErrNotPlayer)
}

func (r *gameSessionRepository) UpdatePhase(ctx context.Context, id, phase string, gameData map[string]any) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "UpdatePhase", id)
	span.SetAttributes(attribute.String("session.phase", phase))
	defer func() { tracing.End(span, err) }()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"phase":     bson.M{"$literal": phase},
			"game_data": mergeGameData(gameData),
		}}},
	}

	return r.apply(ctx, id, bson.M{}, update, nil)
}

func (r *gameSessionRepository) NewRound(ctx context.Context, id string, gameData map[string]any) (s *domain.GameSession, err error) {
	ctx, span := r.span(ctx, "NewRound", id)
	defer func() { tracing.End(span, err) }()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"round":     bson.M{"$add": bson.A{"$round", 1}},
			"phase":     domain.PhaseSetup,
			"votes":     bson.M{"$literal": bson.M{}},
			"game_data": mergeGameData(gameData),
			"players": bson.M{"$map": bson.M{
				"input": "$players",
				"as":    "p",
				"in": bson.M{"$mergeObjects": bson.A{
					"$$p",
					bson.M{"role": nil, "is_alive": true},
				}},
			}},
		}}},
	}
	cond := bson.M{"status": bson.M{"$in": bson.A{domain.SessionActive, domain.SessionPaused}}}

	return r.apply(ctx, id, cond, update, domain.ErrInvalidTransition)
}

func (r *gameSessionRepository) End(ctx context.Context, id string, at time.Time, results map[string]any) (s *domain.GameSession, changed bool, err error) {
	ctx, span := r.span(ctx, "End", id)
	defer func() { tracing.End(span, err) }()

	set := bson.M{
		"status":   domain.SessionEnded,
		"ended_at": at,
	}
	update := bson.M{
		"$set":   set,
		"$unset": bson.M{"open_room_id": ""},
	}
	if results != nil {
		set["results"] = results
	}

	updated, err := r.findOneAndUpdate(ctx, bson.M{"_id": id, "status": bson.M{"$ne": domain.SessionEnded}}, update)
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
	return current, false, nil
}

// apply runs update against an open session matching cond. When nothing matches it reports
// not found, ended, or mismatch, in that order.
func (r *gameSessionRepository) apply(ctx context.Context, id string, cond bson.M, update any, mismatch error) (*domain.GameSession, error) {
	filter := bson.M{"_id": id}
	for k, v := range cond {
		filter[k] = v
	}
	if _, ok := filter["status"]; !ok {
		filter["status"] = bson.M{"$ne": domain.SessionEnded}
	}

	updated, err := r.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	current, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if !current.IsOpen() {
		return nil, domain.ErrSessionEnded
	}
	if mismatch != nil {
		return nil, mismatch
	}
	return current, nil
}

func (r *gameSessionRepository) findOne(ctx context.Context, filter bson.M) (*domain.GameSession, error) {
	var session domain.GameSession
	if err := r.collection.FindOne(ctx, filter).Decode(&session); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *gameSessionRepository) findOneAndUpdate(ctx context.Context, filter, update any) (*domain.GameSession, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session domain.GameSession
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&session); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// mergeGameData shallow-merges data into the stored game_data inside a pipeline stage.
func mergeGameData(data map[string]any) any {
	current := bson.M{"$ifNull": bson.A{"$game_data", bson.M{}}}
	if len(data) == 0 {
		return current
	}
	return bson.M{"$mergeObjects": bson.A{current, bson.M{"$literal": data}}}
}

func toDocument(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
