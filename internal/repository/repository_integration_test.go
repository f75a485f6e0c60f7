//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"sale-service/internal/domain/outbox"
	"sale-service/internal/domain/sale"
	sale_errors "sale-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("sales"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.up.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, f := range files {
		ddl, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(ddl))
		require.NoError(t, err, f)
	}
	return pool
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestIntegration_SaleAndOutboxCommitTogether(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	s := sale.New("C1", "user-1", time.Now())
	err := WithinTransaction(ctx, NewUnitOfWork(pool), func(uow UnitOfWork) error {
		if err := uow.Sales().Create(ctx, s); err != nil {
			return err
		}
		return uow.Outbox().Add(ctx, &outbox.Message{
			AggregateID: s.ID,
			RoutingKey:  "sale.header.created",
			Payload:     []byte(`{"sale_id":"` + s.ID.String() + `"}`),
		})
	})
	require.NoError(t, err)

	got, err := NewSaleRepository(pool).GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sale.StatusPendingDetails, got.Status)
	assert.True(t, got.TotalAmount.IsZero())

	pending, err := NewOutboxRepository(pool).GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "sale.header.created", pending[0].RoutingKey)
}

func TestIntegration_RollbackLeavesNothing(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithinTransaction(ctx, NewUnitOfWork(pool), func(uow UnitOfWork) error {
		s := sale.New("C1", "user-1", time.Now())
		if err := uow.Sales().Create(ctx, s); err != nil {
			return err
		}
		if err := uow.Outbox().Add(ctx, &outbox.Message{AggregateID: s.ID, RoutingKey: "sale.header.created", Payload: []byte(`{}`)}); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRows(t, pool, "sales"))
	assert.Equal(t, 0, countRows(t, pool, "outbox"))
}

func TestIntegration_SaleQueries(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewSaleRepository(pool)

	later := sale.New("C2", "u", time.Now())
	earlier := sale.New("C1", "u", time.Now().Add(-time.Hour))
	gone := sale.New("C3", "u", time.Now())
	for _, s := range []*sale.Sale{later, earlier, gone} {
		require.NoError(t, repo.Create(ctx, s))
	}
	require.NoError(t, repo.Delete(ctx, gone.ID, "admin"))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, earlier.ID, all[0].ID)
	assert.Equal(t, later.ID, all[1].ID)

	missing, err := repo.GetByID(ctx, gone.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	var deleted bool
	require.NoError(t, pool.QueryRow(ctx, "SELECT is_deleted FROM sales WHERE id = $1", gone.ID).Scan(&deleted))
	assert.True(t, deleted)

	reason := "out_of_stock"
	earlier.Status = sale.StatusRejected
	earlier.RejectionReason = &reason
	earlier.TotalAmount = decimal.RequireFromString("50.00")
	require.NoError(t, repo.Update(ctx, earlier))

	got, err := repo.GetByID(ctx, earlier.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, reason, *got.RejectionReason)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("50")))
	assert.NotNil(t, got.UpdatedAt)
}

func TestIntegration_MaxTotalFitsColumn(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewSaleRepository(pool)

	s := sale.New("C1", "u", time.Now())
	require.NoError(t, repo.Create(ctx, s))
	require.NoError(t, s.ApplyDetails(sale.MaxTotalAmount, time.Now()))
	require.NoError(t, repo.Update(ctx, s))

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, sale.MaxTotalAmount.Equal(got.TotalAmount))
}

func TestIntegration_OutboxLifecycle(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewOutboxRepository(pool, WithMaxAttempts(2))

	first := &outbox.Message{AggregateID: uuid.New(), RoutingKey: "sale.updated", Payload: []byte(`{"n":1}`), CreatedAt: time.Now().Add(-time.Minute)}
	second := &outbox.Message{AggregateID: uuid.New(), RoutingKey: "sale.cancelled", Payload: []byte(`{"n":2}`)}
	require.NoError(t, repo.Add(ctx, first))
	require.NoError(t, repo.Add(ctx, second))

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.NoError(t, repo.IncrementAttempt(ctx, second.ID, "broker down"))
	require.NoError(t, repo.IncrementAttempt(ctx, second.ID, "broker down"))

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	exhausted, err := repo.CountExhausted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, exhausted)

	var status string
	var publishedAt *time.Time
	require.NoError(t, pool.QueryRow(ctx, "SELECT status, published_at FROM outbox WHERE id = $1", first.ID).Scan(&status, &publishedAt))
	assert.Equal(t, string(outbox.StatusPublished), status)
	assert.NotNil(t, publishedAt)
}

func TestIntegration_IdempotencyLedger(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	ledger := NewIdempotencyRepository(pool)

	seen, err := ledger.HasProcessed(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, ledger.MarkProcessed(ctx, "m-1", "stock.reserved"))
	assert.ErrorIs(t, ledger.MarkProcessed(ctx, "m-1", "stock.reserved"), sale_errors.ErrAlreadyProcessed)

	seen, err = ledger.HasProcessed(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, countRows(t, pool, "idempotency"))
}

func TestIntegration_IdempotencyLedgerLongMessageID(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	ledger := NewIdempotencyRepository(pool)

	id := strings.Repeat("x", 1024)
	require.NoError(t, ledger.MarkProcessed(ctx, id, "stock.reserved"))

	seen, err := ledger.HasProcessed(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)
}
