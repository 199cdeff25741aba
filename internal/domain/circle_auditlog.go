package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CircleEventType string

const (
	EventCircleCreated      CircleEventType = "circle_created"
	EventCircleEnded        CircleEventType = "circle_ended"
	EventCircleExpired      CircleEventType = "circle_expired"
	EventCircleCancelled    CircleEventType = "circle_cancelled"
	EventParticipantJoined  CircleEventType = "participant_joined"
	EventParticipantLeft    CircleEventType = "participant_left"
	EventCircleFullRejected CircleEventType = "circle_full_rejected"
	EventGameStarted        CircleEventType = "game_started"
	EventGameEnded          CircleEventType = "game_ended"
)

type CircleAuditLog struct {
	ID        string          `bson:"_id" json:"id"`
	CircleID  string          `bson:"circle_id" json:"circleId"`
	EventType CircleEventType `bson:"event_type" json:"eventType"`
	ActorID   string          `bson:"actor_id,omitempty" json:"actorId,omitempty"`
	Timestamp time.Time       `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any  `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type CircleAuditRepository interface {
	Log(ctx context.Context, log *CircleAuditLog) error
	GetByCircleID(ctx context.Context, circleID string, limit int) ([]CircleAuditLog, error)
	GetByEventType(ctx context.Context, eventType CircleEventType, from, to time.Time) ([]CircleAuditLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}

func newAuditLog(circleID, actorID string, eventType CircleEventType, at time.Time, metadata map[string]any) *CircleAuditLog {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &CircleAuditLog{
		ID:        uuid.NewString(),
		CircleID:  circleID,
		EventType: eventType,
		ActorID:   actorID,
		Timestamp: at,
		Metadata:  metadata,
	}
}

func NewCircleCreatedLog(c *Circle) *CircleAuditLog {
	return newAuditLog(c.ID, c.HostID, EventCircleCreated, c.CreatedAt, map[string]any{
		"duration":         c.Duration,
		"max_participants": c.MaxParticipants,
		"is_private":       c.IsPrivate,
		"game_type":        string(c.GameType),
	})
}

// NewCircleClosedLog records the end of a circle. eventType is one of the ended, expired or cancelled events.
func NewCircleClosedLog(c *Circle, actorID string, eventType CircleEventType) *CircleAuditLog {
	at := time.Now()
	if c.EndedAt != nil {
		at = *c.EndedAt
	}
	return newAuditLog(c.ID, actorID, eventType, at, map[string]any{
		"participant_count": c.CurrentParticipants,
	})
}

func NewParticipantJoinedLog(circleID, userID string, count int, at time.Time) *CircleAuditLog {
	return newAuditLog(circleID, userID, EventParticipantJoined, at, map[string]any{
		"participant_count": count,
	})
}

func NewParticipantLeftLog(circleID, userID string, count int, at time.Time) *CircleAuditLog {
	return newAuditLog(circleID, userID, EventParticipantLeft, at, map[string]any{
		"participant_count": count,
	})
}

func NewCircleFullRejectionLog(circleID, userID string, at time.Time) *CircleAuditLog {
	return newAuditLog(circleID, userID, EventCircleFullRejected, at, nil)
}

func NewGameStartedLog(s *GameSession, actorID string, at time.Time) *CircleAuditLog {
	return newAuditLog(s.RoomID, actorID, EventGameStarted, at, map[string]any{
		"session_id": s.ID,
		"game_type":  string(s.GameType),
		"players":    len(s.Players),
	})
}

func NewGameEndedLog(s *GameSession, actorID string, at time.Time) *CircleAuditLog {
	return newAuditLog(s.RoomID, actorID, EventGameEnded, at, map[string]any{
		"session_id": s.ID,
		"round":      s.Round,
	})
}
