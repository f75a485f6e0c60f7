package repository

import (
	"context"
	"errors"
	"fmt"

	sale_errors "sale-service/pkg/errors"

	"github.com/jackc/pgx/v5"
)

// Pool is the subset of *pgxpool.Pool the unit of work needs.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type pgUnitOfWork struct {
	pool Pool
	tx   pgx.Tx

	sales       SaleRepository
	outbox      OutboxRepository
	idempotency IdempotencyLedger
}

func NewUnitOfWork(pool Pool) UnitOfWork {
	return &pgUnitOfWork{pool: pool}
}

// NewUnitOfWorkFactory hands out a fresh unit of work per operation.
func NewUnitOfWorkFactory(pool Pool) UnitOfWorkFactory {
	return UnitOfWorkFactoryFunc(func() UnitOfWork {
		return NewUnitOfWork(pool)
	})
}

func (u *pgUnitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return sale_errors.ErrTxActive
	}
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	u.tx = tx
	u.reset()
	return nil
}

func (u *pgUnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return sale_errors.ErrNoTx
	}
	tx := u.tx
	u.tx = nil
	u.reset()

	if err := tx.Commit(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("commit: %w (rollback error: %v)", err, rbErr)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	tx := u.tx
	u.tx = nil
	u.reset()

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) EnsureOpen(ctx context.Context) error {
	if u.tx != nil {
		return nil
	}
	if err := u.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}

func (u *pgUnitOfWork) InTransaction() bool {
	return u.tx != nil
}

func (u *pgUnitOfWork) Sales() SaleRepository {
	if u.sales == nil {
		u.sales = NewSaleRepository(u.db())
	}
	return u.sales
}

func (u *pgUnitOfWork) Outbox() OutboxRepository {
	if u.outbox == nil {
		u.outbox = NewOutboxRepository(u.db())
	}
	return u.outbox
}

func (u *pgUnitOfWork) Idempotency() IdempotencyLedger {
	if u.idempotency == nil {
		u.idempotency = NewIdempotencyRepository(u.db())
	}
	return u.idempotency
}

func (u *pgUnitOfWork) db() DBTX {
	if u.tx != nil {
		return u.tx
	}
	return u.pool
}

func (u *pgUnitOfWork) reset() {
	u.sales = nil
	u.outbox = nil
	u.idempotency = nil
}

// WithinTransaction runs fn between Begin and Commit. An error or panic from fn
// rolls the transaction back before it propagates.
func WithinTransaction(ctx context.Context, uow UnitOfWork, fn func(uow UnitOfWork) error) (err error) {
	if err := uow.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(uow); err != nil {
		if rbErr := uow.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
		}
		return err
	}
	return uow.Commit(ctx)
}
