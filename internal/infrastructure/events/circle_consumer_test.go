package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/contracts"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/messaging"
	"github.com/hilthontt/haven/internal/infrastructure/repository"
)

func encode(t *testing.T, log domain.CircleAuditLog) []byte {
	t.Helper()

	data, err := json.Marshal(messaging.CircleEventData{Log: log})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body, err := json.Marshal(contracts.AmqpMessage{OwnerID: log.ActorID, Data: data})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return body
}

func TestConsumerStoresEventsOnce(t *testing.T) {
	audit := repository.NewCircleAuditLogRepository(10)
	consumer := NewCircleConsumer(nil, audit, logging.NewNopLogger())

	body := encode(t, domain.CircleAuditLog{
		ID:        "evt-1",
		CircleID:  "c1",
		EventType: domain.EventParticipantJoined,
		ActorID:   "u1",
		Timestamp: time.Now(),
	})

	for i := 0; i < 2; i++ {
		if err := consumer.Handle(context.Background(), contracts.EventParticipantJoined, body); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	logs, _ := audit.GetByCircleID(context.Background(), "c1", 0)
	if len(logs) != 1 || logs[0].ActorID != "u1" {
		t.Fatalf("expected one stored entry, got %+v", logs)
	}
}

func TestConsumerRejectsBadMessages(t *testing.T) {
	consumer := NewCircleConsumer(nil, repository.NewCircleAuditLogRepository(10), logging.NewNopLogger())

	if err := consumer.Handle(context.Background(), "circle.created", []byte("not json")); err == nil {
		t.Fatal("expected a decode error")
	}

	body := encode(t, domain.CircleAuditLog{EventType: domain.EventCircleCreated})
	if err := consumer.Handle(context.Background(), "circle.created", body); err == nil {
		t.Fatal("expected an error for an event without a circle id")
	}
}

func TestRoutingKey(t *testing.T) {
	key, err := RoutingKey(domain.EventGameStarted)
	if err != nil || key != contracts.EventGameStarted {
		t.Fatalf("got %q, %v", key, err)
	}
	if _, err := RoutingKey("unknown"); err == nil {
		t.Fatal("expected an error for an unknown event")
	}
}
