package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher hands a serialized body to the bus under a routing key.
// A nil error means the broker accepted the message.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// PublishJSON marshals v and publishes it.
func PublishJSON(ctx context.Context, p Publisher, rk RoutingKey, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", rk, err)
	}
	return p.Publish(ctx, rk.String(), body)
}
