package redis

import (
	"context"
	"errors"
	"time"

	"sale-service/internal/repository"
	sale_errors "sale-service/pkg/errors"
	"sale-service/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const idempotencyKeyPrefix = "idempotency:"

// CachedLedger fronts the durable idempotency ledger with Redis.
// Postgres stays authoritative: a Redis miss or error always falls through to it,
// and Redis failures never fail the call.
type CachedLedger struct {
	durable repository.IdempotencyLedger
	client  goredis.UniversalClient
	ttl     time.Duration
	logger  *logger.Logger
}

func NewCachedLedger(durable repository.IdempotencyLedger, client goredis.UniversalClient, ttl time.Duration, l *logger.Logger) *CachedLedger {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &CachedLedger{
		durable: durable,
		client:  client,
		ttl:     ttl,
		logger:  l.With(zap.String("component", "idempotency_cache")),
	}
}

func (c *CachedLedger) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	key := idempotencyKeyPrefix + messageID

	n, err := c.client.Exists(ctx, key).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		c.logger.Warn("idempotency cache read failed", zap.String("message_id", messageID), zap.Error(err))
	}

	seen, err := c.durable.HasProcessed(ctx, messageID)
	if err != nil {
		return false, err
	}
	if seen {
		c.remember(ctx, key)
	}
	return seen, nil
}

func (c *CachedLedger) MarkProcessed(ctx context.Context, messageID, routingKey string) error {
	err := c.durable.MarkProcessed(ctx, messageID, routingKey)
	if err != nil && !errors.Is(err, sale_errors.ErrAlreadyProcessed) {
		return err
	}
	c.remember(ctx, idempotencyKeyPrefix+messageID)
	return err
}

func (c *CachedLedger) remember(ctx context.Context, key string) {
	if err := c.client.Set(ctx, key, 1, c.ttl).Err(); err != nil {
		c.logger.Warn("idempotency cache write failed", zap.String("key", key), zap.Error(err))
	}
}
