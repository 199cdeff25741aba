package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/contracts"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/messaging"
	"github.com/rabbitmq/amqp091-go"
)

// CircleConsumer persists every circle and game event into the audit log.
type CircleConsumer struct {
	rabbitmq *messaging.RabbitMQ
	audit    domain.CircleAuditRepository
	logger   logging.Logger
}

func NewCircleConsumer(rabbitmq *messaging.RabbitMQ, audit domain.CircleAuditRepository, logger logging.Logger) *CircleConsumer {
	return &CircleConsumer{
		rabbitmq: rabbitmq,
		audit:    audit,
		logger:   logger,
	}
}

func (c *CircleConsumer) Listen(ctx context.Context) error {
	return c.rabbitmq.ConsumeMessages(ctx, messaging.CircleAuditQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		return c.Handle(ctx, msg.RoutingKey, msg.Body)
	})
}

// Handle decodes one delivery body and stores its audit entry.
func (c *CircleConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	var message contracts.AmqpMessage
	if err := json.Unmarshal(body, &message); err != nil {
		c.logger.Error(logging.RabbitMQ, logging.Consume, "Failed to unmarshal message", logging.WithError(err, nil))
		return err
	}

	var payload messaging.CircleEventData
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		c.logger.Error(logging.RabbitMQ, logging.Consume, "Failed to unmarshal event data", logging.WithError(err, nil))
		return err
	}

	if payload.Log.CircleID == "" {
		return fmt.Errorf("event %s has no circle id", routingKey)
	}

	if err := c.audit.Log(ctx, &payload.Log); err != nil {
		c.logger.Error(logging.RabbitMQ, logging.Consume, "Failed to write audit log", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: payload.Log.CircleID,
		}))
		return err
	}

	c.logger.Debug(logging.RabbitMQ, logging.Consume, "Audit log written", map[logging.ExtraKey]any{
		logging.CircleID: payload.Log.CircleID,
		"RoutingKey":     routingKey,
	})
	return nil
}
