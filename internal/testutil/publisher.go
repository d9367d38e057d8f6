package testutil

import (
	"context"
	"sync"

	"github.com/feed-system/photo-feed/pkg/queue"
)

// Publisher records events instead of sending them to Kafka.
type Publisher struct {
	mu     sync.Mutex
	events []queue.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, _ string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if event, ok := value.(queue.Event); ok {
		p.events = append(p.events, event)
	}
	return nil
}

func (p *Publisher) Events() []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Event(nil), p.events...)
}

// Count returns how many events of the given type were published.
func (p *Publisher) Count(eventType queue.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
