package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	OwnerID string `json:"ownerId"`
	Data    []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventCircleCreated      = "circle.created"
	EventCircleEnded        = "circle.ended"
	EventCircleExpired      = "circle.expired"
	EventCircleCancelled    = "circle.cancelled"
	EventParticipantJoined  = "circle.participant.joined"
	EventParticipantLeft    = "circle.participant.left"
	EventCircleFullRejected = "circle.participant.rejected"
	EventGameStarted        = "game.started"
	EventGameEnded          = "game.ended"

	CircleEventsPattern = "circle.#"
	GameEventsPattern   = "game.#"
)
