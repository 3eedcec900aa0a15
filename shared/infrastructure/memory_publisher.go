package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/saga-orchestrator/shared/events"
)

var _ events.Publisher = (*InMemoryPublisher)(nil)

// InMemoryPublisher keeps published events in memory. It backs the local
// driver and tests.
type InMemoryPublisher struct {
	mux       sync.RWMutex
	published []*events.Event
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mux.Lock()
	defer p.mux.Unlock()

	for _, e := range evts {
		p.published = append(p.published, e.Clone())
	}
	return nil
}

// Published returns the published events, optionally filtered by topic
func (p *InMemoryPublisher) Published(topics ...events.Topic) []*events.Event {
	p.mux.RLock()
	defer p.mux.RUnlock()

	if len(topics) == 0 {
		return append([]*events.Event(nil), p.published...)
	}

	wanted := make(map[events.Topic]struct{}, len(topics))
	for _, t := range topics {
		wanted[t] = struct{}{}
	}

	var filtered []*events.Event
	for _, e := range p.published {
		if _, ok := wanted[e.Topic]; ok {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

func (p *InMemoryPublisher) Reset() {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.published = nil
}
