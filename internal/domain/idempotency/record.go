package idempotency

import "time"

// Record marks an inbound message id as applied. Rows are append-only.
type Record struct {
	MessageID   string
	RoutingKey  string
	ProcessedAt time.Time
}
