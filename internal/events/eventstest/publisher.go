// Package eventstest provides a recording bus publisher for tests.
package eventstest

import (
	"context"
	"encoding/json"
	"sync"
)

type Published struct {
	RoutingKey string
	Body       []byte
}

// Decode unmarshals the body into a generic map.
func (p Published) Decode() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(p.Body, &out)
	return out
}

// Publisher records every accepted message. Err, when set, is returned
// instead and nothing is recorded. FailKeys fails only the listed routing keys.
type Publisher struct {
	mu       sync.Mutex
	messages []Published
	Err      error
	FailKeys map[string]error
}

func (p *Publisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if err, ok := p.FailKeys[routingKey]; ok {
		return err
	}
	b := make([]byte, len(body))
	copy(b, body)
	p.messages = append(p.messages, Published{RoutingKey: routingKey, Body: b})
	return nil
}

func (p *Publisher) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}

func (p *Publisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.messages))
	copy(out, p.messages)
	return out
}

// ByKey returns the recorded messages for one routing key.
func (p *Publisher) ByKey(routingKey string) []Published {
	var out []Published
	for _, m := range p.Messages() {
		if m.RoutingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}
