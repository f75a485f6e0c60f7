package saga

import (
	"context"
	"errors"
	"time"

	"sale-service/internal/events"
	"sale-service/internal/repository"
	sale_errors "sale-service/pkg/errors"
	"sale-service/pkg/logger"
	"sale-service/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Consumer applies saga outcomes from other services to sales.
//
// Per delivery: resolve the message id, drop unknown keys and poison bodies,
// skip ids already in the ledger, apply the transition and its notification,
// record the id, then ack. Anything transient in between requeues the message;
// since the ledger is written last, a redelivery re-runs the whole sequence.
type Consumer struct {
	uow       repository.UnitOfWorkFactory
	ledger    repository.IdempotencyLedger
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time
}

var _ events.Handler = (*Consumer)(nil)

type Option func(*Consumer)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Consumer) { c.now = now }
}

func NewConsumer(uow repository.UnitOfWorkFactory, ledger repository.IdempotencyLedger, publisher events.Publisher, l *logger.Logger, opts ...Option) *Consumer {
	if l == nil {
		l = logger.NewNop()
	}
	c := &Consumer{
		uow:       uow,
		ledger:    ledger,
		publisher: publisher,
		logger:    l.With(zap.String("component", "saga_consumer")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) Handle(ctx context.Context, d events.Delivery) events.Decision {
	rk := events.RoutingKey(d.RoutingKey)

	ctx, span := tracing.Tracer().Start(ctx, "saga.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.rabbitmq.routing_key", d.RoutingKey),
		),
	)
	defer span.End()

	msg, parseErr := events.ParseInbound(rk, d.Body)
	bodyID := ""
	if msg != nil {
		bodyID = msg.BodyMessageID()
	}
	messageID := events.ResolveMessageID(bodyID, d.MessageID, d.RoutingKey, d.Body)
	span.SetAttributes(attribute.String("messaging.message.id", messageID))

	log := c.logger.With(zap.String("routing_key", d.RoutingKey), zap.String("message_id", messageID))

	if parseErr != nil {
		log.Error("dropping malformed message", zap.Error(parseErr), zap.ByteString("body", truncate(d.Body, 512)))
		tracing.Fail(span, parseErr)
		return events.Ack
	}
	if _, ok := msg.(events.Unknown); ok {
		log.Warn("no handler for routing key, acknowledging")
		return events.Ack
	}

	seen, err := c.ledger.HasProcessed(ctx, messageID)
	if err != nil {
		log.Error("idempotency lookup failed, requeueing", zap.Error(err))
		tracing.Fail(span, err)
		return events.Requeue
	}
	if seen {
		log.Info("duplicate message, acknowledging")
		span.SetAttributes(attribute.Bool("saga.duplicate", true))
		return events.Ack
	}

	if err := c.apply(ctx, messageID, msg, log); err != nil {
		if errors.Is(err, sale_errors.ErrInvalidInput) {
			log.Error("dropping message with invalid content", zap.Error(err))
			tracing.Fail(span, err)
			return events.Ack
		}
		log.Error("handling failed, requeueing", zap.Error(err))
		tracing.Fail(span, err)
		return events.Requeue
	}

	if err := c.ledger.MarkProcessed(ctx, messageID, d.RoutingKey); err != nil && !errors.Is(err, sale_errors.ErrAlreadyProcessed) {
		log.Error("recording processed message failed, requeueing", zap.Error(err))
		tracing.Fail(span, err)
		return events.Requeue
	}

	log.Debug("message processed")
	return events.Ack
}

// apply dispatches over the closed inbound set.
func (c *Consumer) apply(ctx context.Context, messageID string, msg events.Inbound, log *logger.Logger) error {
	switch ev := msg.(type) {
	case events.DetailsPersisted:
		return c.onDetailsPersisted(ctx, ev, log)
	case events.StockReserved:
		return c.onStockReserved(ctx, messageID, ev, log)
	case events.StockReservationFailed:
		return c.onStockReservationFailed(ctx, messageID, ev, log)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
