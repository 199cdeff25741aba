package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/contracts"
	"github.com/hilthontt/haven/internal/infrastructure/messaging"
)

var routingKeys = map[domain.CircleEventType]string{
	domain.EventCircleCreated:      contracts.EventCircleCreated,
	domain.EventCircleEnded:        contracts.EventCircleEnded,
	domain.EventCircleExpired:      contracts.EventCircleExpired,
	domain.EventCircleCancelled:    contracts.EventCircleCancelled,
	domain.EventParticipantJoined:  contracts.EventParticipantJoined,
	domain.EventParticipantLeft:    contracts.EventParticipantLeft,
	domain.EventCircleFullRejected: contracts.EventCircleFullRejected,
	domain.EventGameStarted:        contracts.EventGameStarted,
	domain.EventGameEnded:          contracts.EventGameEnded,
}

func RoutingKey(eventType domain.CircleEventType) (string, error) {
	key, ok := routingKeys[eventType]
	if !ok {
		return "", fmt.Errorf("no routing key for event %q", eventType)
	}
	return key, nil
}

type CirclePublisher struct {
	rabbitmq *messaging.RabbitMQ
}

func NewCirclePublisher(rabbitmq *messaging.RabbitMQ) *CirclePublisher {
	return &CirclePublisher{
		rabbitmq: rabbitmq,
	}
}

func (p *CirclePublisher) Publish(ctx context.Context, log *domain.CircleAuditLog) error {
	routingKey, err := RoutingKey(log.EventType)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(messaging.CircleEventData{Log: *log})
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		OwnerID: log.ActorID,
		Data:    payload,
	})
}

// DirectPublisher writes events straight to the audit store. It is used when no broker is configured.
type DirectPublisher struct {
	repo domain.CircleAuditRepository
}

func NewDirectPublisher(repo domain.CircleAuditRepository) *DirectPublisher {
	return &DirectPublisher{repo: repo}
}

func (p *DirectPublisher) Publish(ctx context.Context, log *domain.CircleAuditLog) error {
	return p.repo.Log(ctx, log)
}
