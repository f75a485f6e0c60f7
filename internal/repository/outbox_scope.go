package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxScope yields an outbox store bound to a freshly acquired connection and
// a release func that must be called when the cycle ends.
type OutboxScope func(ctx context.Context) (OutboxRepository, func(), error)

// NewPooledOutboxScope acquires one pooled connection per call, so the publisher
// never holds a connection across its idle interval.
func NewPooledOutboxScope(pool *pgxpool.Pool, opts ...OutboxOption) OutboxScope {
	return func(ctx context.Context) (OutboxRepository, func(), error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("acquire connection: %w", err)
		}
		return NewOutboxRepository(conn, opts...), conn.Release, nil
	}
}

// StaticOutboxScope always returns repo; release is a no-op.
func StaticOutboxScope(repo OutboxRepository) OutboxScope {
	return func(context.Context) (OutboxRepository, func(), error) {
		return repo, func() {}, nil
	}
}
