package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery state of an outbox message
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
)

// Message stores a domain event waiting to be published to the bus.
// It is written in the same transaction as the sale change it documents.
type Message struct {
	ID           uuid.UUID
	AggregateID  uuid.UUID
	RoutingKey   string
	Payload      []byte
	Status       Status
	CreatedAt    time.Time
	PublishedAt  *time.Time
	AttemptCount int
	ErrorLog     *string
}
