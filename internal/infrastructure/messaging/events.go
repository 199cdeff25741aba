package messaging

import "github.com/hilthontt/haven/internal/domain"

const (
	CircleAuditQueue = "circle_audit"
	DeadLetterQueue  = "dead_letter_queue"
)

// CircleEventData is the payload of every message on the circles exchange.
type CircleEventData struct {
	Log domain.CircleAuditLog `json:"log"`
}
