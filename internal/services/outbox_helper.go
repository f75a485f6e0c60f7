package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sale-service/internal/domain/outbox"
	"sale-service/internal/events"
	"sale-service/internal/repository"

	"github.com/google/uuid"
)

// enqueue appends an outbox row. It must run inside the transaction that made
// the change the payload describes.
func enqueue(ctx context.Context, repo repository.OutboxRepository, aggregateID uuid.UUID, rk events.RoutingKey, payload any, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", rk, err)
	}
	return repo.Add(ctx, &outbox.Message{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		RoutingKey:  rk.String(),
		Payload:     data,
		Status:      outbox.StatusPending,
		CreatedAt:   now.UTC(),
	})
}
