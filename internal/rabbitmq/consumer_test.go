package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sale-service/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopology() Topology {
	return Topology{
		Exchange: "saga.exchange",
		Queue:    "sale.queue",
		Bindings: []string{"sale.details.persisted", "stock.reserved", "stock.reservation_failed"},
	}
}

func waitSettled(t *testing.T, ack *fakeAcknowledger, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ack.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d was not settled", i+1)
		}
	}
}

func TestTopologyDeclare(t *testing.T) {
	ch := newFakeChannel()

	require.NoError(t, testTopology().Declare(ch))

	assert.Equal(t, []string{"saga.exchange:topic"}, ch.exchanges)
	assert.Equal(t, []string{"sale.queue"}, ch.queues)
	require.Len(t, ch.bindings, 3)
	assert.Equal(t, binding{queue: "sale.queue", key: "stock.reserved", exchange: "saga.exchange"}, ch.bindings[1])
}

func TestTopologyDeclareBindError(t *testing.T) {
	ch := newFakeChannel()
	ch.bindErr = errors.New("access refused")

	err := testTopology().Declare(ch)

	assert.ErrorContains(t, err, "bind sale.queue")
}

func TestConsumerSettlesByDecision(t *testing.T) {
	ch := newFakeChannel()
	ack := newFakeAcknowledger()
	c := NewConsumer(func() (ConsumeChannel, error) { return ch, nil }, ConsumerConfig{
		Topology: testTopology(),
		Prefetch: 4,
	}, nil)

	var mu sync.Mutex
	var seen []events.Delivery
	handler := events.HandlerFunc(func(ctx context.Context, d events.Delivery) events.Decision {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
		if d.RoutingKey == "stock.reserved" {
			return events.Requeue
		}
		return events.Ack
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, handler)
		close(done)
	}()

	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: "sale.details.persisted", MessageId: "p-1", Body: []byte(`{}`)}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, RoutingKey: "stock.reserved", Body: []byte(`{}`)}
	waitSettled(t, ack, 2)

	cancel()
	<-done

	assert.Equal(t, []settlement{
		{tag: 1, acked: true},
		{tag: 2, requeue: true},
	}, ack.all())
	mu.Lock()
	assert.Equal(t, "p-1", seen[0].MessageID)
	mu.Unlock()
	assert.Equal(t, 4, ch.qos)
	assert.True(t, ch.isClosed())
}

func TestConsumerHandlerContextSurvivesShutdown(t *testing.T) {
	ch := newFakeChannel()
	ack := newFakeAcknowledger()
	c := NewConsumer(func() (ConsumeChannel, error) { return ch, nil }, ConsumerConfig{
		Topology:       testTopology(),
		HandlerTimeout: time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var handlerErr error
	handler := events.HandlerFunc(func(hctx context.Context, d events.Delivery) events.Decision {
		close(started)
		cancel()
		time.Sleep(10 * time.Millisecond)
		handlerErr = hctx.Err()
		return events.Ack
	})

	done := make(chan struct{})
	go func() {
		c.Run(ctx, handler)
		close(done)
	}()
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, RoutingKey: "stock.reserved"}

	<-started
	waitSettled(t, ack, 1)
	<-done

	assert.NoError(t, handlerErr)
	assert.Equal(t, []settlement{{tag: 7, acked: true}}, ack.all())
}

func TestConsumerReconnectsAfterClosedDeliveries(t *testing.T) {
	first := newFakeChannel()
	second := newFakeChannel()
	ack := newFakeAcknowledger()

	var mu sync.Mutex
	calls := 0
	provider := func() (ConsumeChannel, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	}
	c := NewConsumer(provider, ConsumerConfig{
		Topology:         testTopology(),
		ReconnectBackoff: 5 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, events.HandlerFunc(func(context.Context, events.Delivery) events.Decision { return events.Ack }))
		close(done)
	}()

	close(first.deliveries)
	second.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: "stock.reserved"}
	waitSettled(t, ack, 1)
	cancel()
	<-done

	assert.True(t, first.isClosed())
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestConsumerStopsDuringBackoff(t *testing.T) {
	c := NewConsumer(func() (ConsumeChannel, error) {
		return nil, errors.New("connection refused")
	}, ConsumerConfig{Topology: testTopology(), ReconnectBackoff: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, events.HandlerFunc(func(context.Context, events.Delivery) events.Decision { return events.Ack }))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
