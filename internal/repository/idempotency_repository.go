package repository

import (
	"context"
	"time"

	sale_errors "sale-service/pkg/errors"
)

type idempotencyRepository struct {
	db DBTX
}

func NewIdempotencyRepository(db DBTX) IdempotencyLedger {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM idempotency WHERE message_id = $1)
    `, messageID).Scan(&exists)
	return exists, err
}

// MarkProcessed relies on the primary key so that concurrent marks of one id
// leave exactly one row; the loser gets ErrAlreadyProcessed.
func (r *idempotencyRepository) MarkProcessed(ctx context.Context, messageID, routingKey string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO idempotency (message_id, routing_key, processed_at)
        VALUES ($1,$2,$3)
    `, messageID, routingKey, time.Now().UTC())
	if isUniqueViolation(err) {
		return sale_errors.ErrAlreadyProcessed
	}
	return err
}
