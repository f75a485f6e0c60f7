package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerOf(channels ...*fakeChannel) (ChannelProvider, *int) {
	calls := 0
	return func() (PublishChannel, error) {
		if calls >= len(channels) {
			return nil, errors.New("no channel left")
		}
		ch := channels[calls]
		calls++
		return ch, nil
	}, &calls
}

func TestPublishSetsPropertiesAndWaitsForConfirm(t *testing.T) {
	ch := newFakeChannel()
	provider, _ := providerOf(ch)
	p := NewPublisher("saga.exchange", provider, time.Second, nil)

	err := p.Publish(context.Background(), "sale.completed", []byte(`{"MessageId":"m-1","sale_id":"x"}`))

	require.NoError(t, err)
	assert.True(t, ch.confirm)
	assert.Equal(t, []string{"saga.exchange:topic"}, ch.exchanges)
	msgs := ch.publishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sale.completed", ch.keys[0])
	assert.Equal(t, amqp.Persistent, msgs[0].DeliveryMode)
	assert.Equal(t, "application/json", msgs[0].ContentType)
	assert.Equal(t, "m-1", msgs[0].MessageId)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestPublishReusesChannel(t *testing.T) {
	ch := newFakeChannel()
	provider, calls := providerOf(ch)
	p := NewPublisher("saga.exchange", provider, time.Second, nil)

	require.NoError(t, p.Publish(context.Background(), "a", []byte(`{}`)))
	require.NoError(t, p.Publish(context.Background(), "b", []byte(`{}`)))

	assert.Equal(t, 1, *calls)
	assert.Len(t, ch.publishedMessages(), 2)
}

func TestPublishNackReturnsError(t *testing.T) {
	ch := newFakeChannel()
	no := false
	ch.ack = func(int) *bool { return &no }
	provider, _ := providerOf(ch)
	p := NewPublisher("saga.exchange", provider, time.Second, nil)

	err := p.Publish(context.Background(), "sale.failed", []byte(`{}`))

	assert.ErrorIs(t, err, ErrPublishNacked)
}

func TestPublishConfirmTimeoutDropsChannel(t *testing.T) {
	silent := newFakeChannel()
	silent.ack = func(int) *bool { return nil }
	healthy := newFakeChannel()
	provider, calls := providerOf(silent, healthy)
	p := NewPublisher("saga.exchange", provider, 20*time.Millisecond, nil)

	err := p.Publish(context.Background(), "sale.failed", []byte(`{}`))
	require.ErrorIs(t, err, ErrConfirmTimeout)
	assert.True(t, silent.isClosed())

	require.NoError(t, p.Publish(context.Background(), "sale.failed", []byte(`{}`)))
	assert.Equal(t, 2, *calls)
}

func TestPublishChannelErrorIsReturned(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = amqp.ErrClosed
	provider, _ := providerOf(ch)
	p := NewPublisher("saga.exchange", provider, time.Second, nil)

	err := p.Publish(context.Background(), "sale.updated", []byte(`{}`))

	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.True(t, ch.isClosed())
}

func TestPublishProviderErrorIsReturned(t *testing.T) {
	provider, _ := providerOf()
	p := NewPublisher("saga.exchange", provider, time.Second, nil)

	assert.Error(t, p.Publish(context.Background(), "sale.updated", []byte(`{}`)))
}

func TestPublishConfirmModeFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.confirmErr = errors.New("not supported")
	provider, _ := providerOf(ch)
	p := NewPublisher("saga.exchange", provider, time.Second, nil)

	err := p.Publish(context.Background(), "sale.updated", []byte(`{}`))

	assert.ErrorContains(t, err, "confirm mode")
	assert.True(t, ch.isClosed())
}

func TestPublishCancelledContext(t *testing.T) {
	ch := newFakeChannel()
	ch.ack = func(int) *bool { return nil }
	provider, _ := providerOf(ch)
	p := NewPublisher("saga.exchange", provider, time.Minute, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, "sale.updated", []byte(`{}`))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBodyMessageID(t *testing.T) {
	assert.Equal(t, "abc", bodyMessageID([]byte(`{"MessageId":"abc"}`)))
	assert.Equal(t, "", bodyMessageID([]byte(`{"MessageId":7}`)))
	assert.Equal(t, "", bodyMessageID([]byte(`not json`)))
}
