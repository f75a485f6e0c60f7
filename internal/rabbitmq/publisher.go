package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sale-service/pkg/logger"
	"sale-service/pkg/tracing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrPublishNacked  = errors.New("message was nacked by broker")
	ErrConfirmTimeout = errors.New("confirmation timed out")
	ErrChannelClosed  = errors.New("channel closed before confirmation")
)

const DefaultConfirmTimeout = 5 * time.Second

// PublishChannel is the subset of *amqp.Channel the publisher uses.
type PublishChannel interface {
	TopologyChannel
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type ChannelProvider func() (PublishChannel, error)

// Publisher publishes persistent JSON messages to a topic exchange and waits
// for the broker confirm of each one. Publishes are serialized so every confirm
// belongs to the message just sent. A channel that failed in any way is
// discarded and a new one is opened on the next publish.
type Publisher struct {
	exchange       string
	provider       ChannelProvider
	confirmTimeout time.Duration
	logger         *logger.Logger

	mu       sync.Mutex
	ch       PublishChannel
	confirms chan amqp.Confirmation
	clock    func() time.Time
}

func NewPublisher(exchange string, provider ChannelProvider, confirmTimeout time.Duration, l *logger.Logger) *Publisher {
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Publisher{
		exchange:       exchange,
		provider:       provider,
		confirmTimeout: confirmTimeout,
		logger:         l.With(zap.String("component", "rabbitmq_publisher")),
		clock:          time.Now,
	}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.clock().UTC(),
		MessageId:    bodyMessageID(body),
		Headers:      amqp.Table(tracing.InjectHeaders(ctx, nil)),
		Body:         body,
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		p.discard()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			p.discard()
			return ErrChannelClosed
		}
		if !confirm.Ack {
			return fmt.Errorf("%w: %s", ErrPublishNacked, routingKey)
		}
		return nil
	case <-timer.C:
		p.discard()
		return ErrConfirmTimeout
	case <-ctx.Done():
		p.discard()
		return ctx.Err()
	}
}

func (p *Publisher) ensureChannel() error {
	if p.ch != nil {
		return nil
	}
	ch, err := p.provider()
	if err != nil {
		return err
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("enable confirm mode: %w", err)
	}
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.ch = ch
	return nil
}

// discard drops the channel so a late confirm can never be matched to the next message.
func (p *Publisher) discard() {
	if p.ch == nil {
		return
	}
	if err := p.ch.Close(); err != nil {
		p.logger.Debug("closing publisher channel", zap.Error(err))
	}
	p.ch = nil
	p.confirms = nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discard()
	return nil
}

func bodyMessageID(body []byte) string {
	var probe struct {
		MessageID string `json:"MessageId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.MessageID
}
