package rabbitmq

import (
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection lazily dials the broker and redials when the connection was closed.
// Publisher and consumer each take their own channel from it.
type Connection struct {
	url  string
	mu   sync.Mutex
	conn *amqp.Connection
}

func NewConnection(url string) *Connection {
	return &Connection{url: url}
}

func (c *Connection) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		c.conn = conn
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// PublisherChannel satisfies ChannelProvider.
func (c *Connection) PublisherChannel() (PublishChannel, error) {
	ch, err := c.channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ConsumerChannel satisfies ConsumeChannelProvider.
func (c *Connection) ConsumerChannel() (ConsumeChannel, error) {
	ch, err := c.channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
