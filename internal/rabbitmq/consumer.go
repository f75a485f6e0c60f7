package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sale-service/internal/events"
	"sale-service/pkg/logger"
	"sale-service/pkg/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

// ConsumeChannel is the subset of *amqp.Channel the consumer uses.
type ConsumeChannel interface {
	TopologyChannel
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type ConsumeChannelProvider func() (ConsumeChannel, error)

type ConsumerConfig struct {
	Topology         Topology
	Prefetch         int
	HandlerTimeout   time.Duration
	ReconnectBackoff time.Duration
	Tag              string
}

// Consumer feeds deliveries one at a time to a handler and settles each one
// with the handler's decision. Acks are manual and sent only after the handler returns.
type Consumer struct {
	provider ConsumeChannelProvider
	cfg      ConsumerConfig
	logger   *logger.Logger
}

func NewConsumer(provider ConsumeChannelProvider, cfg ConsumerConfig, l *logger.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Consumer{
		provider: provider,
		cfg:      cfg,
		logger:   l.With(zap.String("component", "rabbitmq_consumer"), zap.String("queue", cfg.Topology.Queue)),
	}
}

// Run consumes until ctx is cancelled, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context, handler events.Handler) {
	c.logger.Info("consumer started", zap.Strings("bindings", c.cfg.Topology.Bindings))
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return
		}
		c.logger.Warn("consumer interrupted, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", c.cfg.ReconnectBackoff),
		)
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped")
			return
		case <-time.After(c.cfg.ReconnectBackoff):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, handler events.Handler) error {
	ch, err := c.provider()
	if err != nil {
		return err
	}
	// Closing the channel returns unacked deliveries to the queue.
	defer func() { _ = ch.Close() }()

	if err := c.cfg.Topology.Declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Topology.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Topology.Queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.dispatch(ctx, handler, d)
		}
	}
}

// dispatch detaches the handler from shutdown so in-flight work can finish,
// bounded by the handler timeout.
func (c *Consumer) dispatch(ctx context.Context, handler events.Handler, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.HandlerTimeout)
	defer cancel()
	hctx = tracing.ExtractHeaders(hctx, d.Headers)

	decision := handler.Handle(hctx, events.Delivery{
		RoutingKey: d.RoutingKey,
		MessageID:  d.MessageId,
		Headers:    d.Headers,
		Body:       d.Body,
	})

	var err error
	switch decision {
	case events.Ack:
		err = d.Ack(false)
	default:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.Error("settling delivery failed",
			zap.String("routing_key", d.RoutingKey),
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Stringer("decision", decision),
			zap.Error(err),
		)
	}
}
