package events

import "context"

// Delivery is one inbound bus message, independent of the transport.
type Delivery struct {
	RoutingKey string
	// MessageID is the transport message-id property, "" when unset.
	MessageID string
	Headers   map[string]any
	Body      []byte
}

// Decision tells the transport how to settle a delivery.
type Decision int

const (
	// Ack removes the message from the queue.
	Ack Decision = iota
	// Requeue negatively acknowledges so the broker redelivers.
	Requeue
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Handler settles each delivery by returning a Decision. It must not ack itself.
type Handler interface {
	Handle(ctx context.Context, d Delivery) Decision
}

type HandlerFunc func(ctx context.Context, d Delivery) Decision

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) Decision {
	return f(ctx, d)
}
