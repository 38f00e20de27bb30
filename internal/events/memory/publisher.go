// Package memory records published events in memory, for tests and for
// running without a broker.
package memory

import (
	"sync"

	"github.com/dvloznov/wealth-tracker/internal/events"
)

// Published is one captured event.
type Published struct {
	Topic string
	Event any
}

// Publisher collects events instead of delivering them.
type Publisher struct {
	mu        sync.Mutex
	published []Published
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, Published{Topic: topic, Event: event})
	return nil
}

func (p *Publisher) Close() error {
	return nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}

var _ events.Publisher = (*Publisher)(nil)
