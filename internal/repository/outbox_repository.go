package repository

import (
	"context"
	"time"

	"sale-service/internal/domain/outbox"

	"github.com/google/uuid"
)

type outboxRepository struct {
	db          DBTX
	maxAttempts int
}

type OutboxOption func(*outboxRepository)

// WithMaxAttempts hides rows that failed max times from GetPending. Zero means unlimited.
func WithMaxAttempts(max int) OutboxOption {
	return func(r *outboxRepository) {
		r.maxAttempts = max
	}
}

func NewOutboxRepository(db DBTX, opts ...OutboxOption) OutboxRepository {
	r := &outboxRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *outboxRepository) Add(ctx context.Context, msg *outbox.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = outbox.StatusPending

	_, err := r.db.Exec(ctx, `
        INSERT INTO outbox (id, aggregate_id, routing_key, payload, status, created_at, published_at, attempt_count, error_log)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `,
		msg.ID,
		msg.AggregateID,
		msg.RoutingKey,
		string(msg.Payload),
		msg.Status,
		msg.CreatedAt,
		msg.PublishedAt,
		msg.AttemptCount,
		msg.ErrorLog,
	)
	return err
}

func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, aggregate_id, routing_key, payload, status, created_at, published_at, attempt_count, error_log
        FROM outbox
        WHERE status = $1 AND ($2 = 0 OR attempt_count < $2)
        ORDER BY created_at ASC
        LIMIT $3
    `, outbox.StatusPending, r.maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []outbox.Message
	for rows.Next() {
		var (
			msg     outbox.Message
			payload string
			status  string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateID,
			&msg.RoutingKey,
			&payload,
			&status,
			&msg.CreatedAt,
			&msg.PublishedAt,
			&msg.AttemptCount,
			&msg.ErrorLog,
		); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payload)
		msg.Status = outbox.Status(status)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountExhausted counts pending rows that reached the attempt limit.
func (r *outboxRepository) CountExhausted(ctx context.Context) (int, error) {
	if r.maxAttempts <= 0 {
		return 0, nil
	}
	var count int
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM outbox WHERE status = $1 AND attempt_count >= $2
    `, outbox.StatusPending, r.maxAttempts).Scan(&count)
	return count, err
}

func (r *outboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox
        SET status = $1, published_at = $2
        WHERE id = $3 AND status = $4
    `, outbox.StatusPublished, time.Now().UTC(), id, outbox.StatusPending)
	return err
}

func (r *outboxRepository) IncrementAttempt(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox
        SET attempt_count = attempt_count + 1, error_log = $1
        WHERE id = $2 AND status = $3
    `, reason, id, outbox.StatusPending)
	return err
}
