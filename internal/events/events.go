// Package events publishes committed lifecycle transitions to subscribers.
package events

import (
	"context"
	"sync"

	"github.com/digiurban/lifecycle/model"
)

// SubjectPrefix prefixes every event subject: lifecycle.<event type>.
const SubjectPrefix = "lifecycle."

// Publisher delivers lifecycle events. Publish is called after the
// transition has committed, so a failure never rolls anything back.
type Publisher interface {
	Publish(ctx context.Context, ev model.LifecycleEvent) error
	Close() error
}

// Subject returns the bus subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, model.LifecycleEvent) error { return nil }
func (Nop) Close() error { return nil }

// MemoryPublisher records events in order. Used by tests and by the
// single-process deployment when no broker is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
	err    error
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records ev, or returns the error set by FailWith.
func (p *MemoryPublisher) Publish(_ context.Context, ev model.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

// FailWith makes every subsequent Publish return err. A nil err restores
// normal behaviour.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (p *MemoryPublisher) Events() []model.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.LifecycleEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the recorded event types in publish order.
func (p *MemoryPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

// Reset drops every recorded event.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// Close implements Publisher.
func (p *MemoryPublisher) Close() error { return nil }
