package repository

import (
	"context"

	"github.com/google/uuid"

	"sale-service/internal/domain/outbox"
	"sale-service/internal/domain/sale"
)

// SaleRepository is bound to whatever DBTX the unit of work hands it.
type SaleRepository interface {
	Create(ctx context.Context, s *sale.Sale) error
	// GetByID returns (nil, nil) when the sale does not exist or is soft-deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*sale.Sale, error)
	// GetByIDForUpdate is GetByID with a row lock; only meaningful inside a transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*sale.Sale, error)
	GetAll(ctx context.Context) ([]sale.Sale, error)
	Update(ctx context.Context, s *sale.Sale) error
	Delete(ctx context.Context, id uuid.UUID, updatedBy string) error
}

type OutboxRepository interface {
	Add(ctx context.Context, msg *outbox.Message) error
	GetPending(ctx context.Context, limit int) ([]outbox.Message, error)
	CountExhausted(ctx context.Context) (int, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	IncrementAttempt(ctx context.Context, id uuid.UUID, reason string) error
}

// IdempotencyLedger records which inbound message ids were already applied.
type IdempotencyLedger interface {
	HasProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkProcessed returns ErrAlreadyProcessed when the id is already recorded.
	MarkProcessed(ctx context.Context, messageID, routingKey string) error
}

// UnitOfWork scopes one transaction and the repositories bound to it.
// Instances are single-use per transaction and not safe for concurrent use.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	EnsureOpen(ctx context.Context) error
	InTransaction() bool

	Sales() SaleRepository
	Outbox() OutboxRepository
	Idempotency() IdempotencyLedger
}

type UnitOfWorkFactory interface {
	New() UnitOfWork
}

// UnitOfWorkFactoryFunc adapts a function to UnitOfWorkFactory.
type UnitOfWorkFactoryFunc func() UnitOfWork

func (f UnitOfWorkFactoryFunc) New() UnitOfWork {
	return f()
}
