package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainoutbox "sale-service/internal/domain/outbox"
	"sale-service/internal/events"
	"sale-service/internal/repository"
	"sale-service/pkg/logger"
	"sale-service/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 50
	DefaultInterval  = 5 * time.Second
)

type Processor struct {
	scope     repository.OutboxScope
	publisher events.Publisher
	logger    *logger.Logger
	batchSize int
	interval  time.Duration
}

// BatchResult summarizes one drain cycle.
type BatchResult struct {
	Fetched   int
	Published int
	Failed    int
}

func NewProcessor(scope repository.OutboxScope, publisher events.Publisher, l *logger.Logger, batchSize int, interval time.Duration) *Processor {
	if l == nil {
		l = logger.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Processor{
		scope:     scope,
		publisher: publisher,
		logger:    l.With(zap.String("component", "outbox_processor")),
		batchSize: batchSize,
		interval:  interval,
	}
}

// Run drains the outbox once, then again after every interval, until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle never lets a failure escape: errors and panics are logged and the
// loop carries on at the next tick.
func (p *Processor) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("outbox cycle panicked", zap.Any("panic", r))
		}
	}()

	result, err := p.processBatch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("outbox cycle failed", zap.Error(err))
		return
	}
	if result.Fetched > 0 {
		p.logger.Info("outbox batch drained",
			zap.Int("fetched", result.Fetched),
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed),
		)
	}
}

func (p *Processor) processBatch(ctx context.Context) (BatchResult, error) {
	var result BatchResult

	repo, release, err := p.scope(ctx)
	if err != nil {
		return result, err
	}
	defer release()

	batch, err := repo.GetPending(ctx, p.batchSize)
	if err != nil {
		return result, fmt.Errorf("load pending outbox messages: %w", err)
	}
	result.Fetched = len(batch)

	if exhausted, err := repo.CountExhausted(ctx); err == nil && exhausted > 0 {
		p.logger.Warn("outbox messages reached max attempts and are parked", zap.Int("count", exhausted))
	}

	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		if p.publishOne(ctx, repo, &batch[i]) {
			result.Published++
		} else {
			result.Failed++
		}
	}
	return result, nil
}

// publishOne reports whether the message reached the bus. A failed MarkSent
// still counts as published; the row is sent again next cycle.
func (p *Processor) publishOne(ctx context.Context, repo repository.OutboxRepository, msg *domainoutbox.Message) bool {
	ctx, span := tracing.Tracer().Start(ctx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.routing_key", msg.RoutingKey),
			attribute.String("outbox.id", msg.ID.String()),
			attribute.Int("outbox.attempt_count", msg.AttemptCount),
		),
	)
	defer span.End()

	log := p.logger.With(
		zap.String("outbox_id", msg.ID.String()),
		zap.String("routing_key", msg.RoutingKey),
	)

	if !json.Valid(msg.Payload) {
		err := errors.New("payload is not valid JSON")
		tracing.Fail(span, err)
		p.recordFailure(ctx, repo, msg, err, log)
		return false
	}

	if err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload); err != nil {
		tracing.Fail(span, err)
		p.recordFailure(ctx, repo, msg, err, log)
		return false
	}

	if err := repo.MarkSent(ctx, msg.ID); err != nil {
		tracing.Fail(span, err)
		log.Error("published but could not mark outbox message sent", zap.Error(err))
	}
	return true
}

func (p *Processor) recordFailure(ctx context.Context, repo repository.OutboxRepository, msg *domainoutbox.Message, cause error, log *logger.Logger) {
	log.Error("outbox publish failed",
		zap.Int("attempt", msg.AttemptCount+1),
		zap.Error(cause),
	)
	if err := repo.IncrementAttempt(ctx, msg.ID, cause.Error()); err != nil {
		log.Error("could not record outbox attempt", zap.Error(err))
	}
}
