package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKindTopic = "topic"

// TopologyChannel is the subset of *amqp.Channel needed to declare topology.
type TopologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Topology is a durable topic exchange plus one durable queue bound to a fixed key set.
type Topology struct {
	Exchange string
	Queue    string
	Bindings []string
}

func declareExchange(ch TopologyChannel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Declare is idempotent on the broker side and runs on every (re)connect.
func (t Topology) Declare(ch TopologyChannel) error {
	if err := declareExchange(ch, t.Exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	for _, key := range t.Bindings {
		if err := ch.QueueBind(t.Queue, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", t.Queue, key, err)
		}
	}
	return nil
}
