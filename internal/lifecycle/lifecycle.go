// Package lifecycle drives a protocol through its workflow: the ordered
// stages, the SLA clock and the pending items that can block progress.
//
// Every operation on a protocol runs as one store transaction. Events and
// metrics for the transition are emitted only after that transaction
// commits.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/calendar"
	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/internal/events"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
	"github.com/digiurban/lifecycle/model"
)

const defaultNearDueDays = 3

// Option configures the engines built by New.
type Option func(*core)

// WithClock overrides the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(c *core) { c.clock = now }
}

// WithCalendar sets the business-day calendar used for SLA and stage due
// dates. The default treats weekends as the only non-business days.
func WithCalendar(cal calendar.Calendar) Option {
	return func(c *core) { c.cal = cal }
}

// WithLogger sets the fallback logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *core) { c.logger = logger }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *core) { c.metrics = m }
}

// WithPublisher sets the event bus committed transitions are published to.
func WithPublisher(p events.Publisher) Option {
	return func(c *core) { c.publisher = p }
}

// WithNearDueDays sets how many business days before the deadline an SLA is
// reported as NEAR_DUE.
func WithNearDueDays(days int) Option {
	return func(c *core) {
		if days >= 0 {
			c.nearDueDays = days
		}
	}
}

// WithPendingTypes registers pending types beyond the built-in ones.
func WithPendingTypes(types ...string) Option {
	return func(c *core) {
		for _, t := range types {
			c.pendingTypes[t] = true
		}
	}
}

// core holds the collaborators shared by every engine.
type core struct {
	store        store.Store
	registry     *definition.Registry
	cal          calendar.Calendar
	clock        func() time.Time
	logger       *zap.Logger
	metrics      *observability.Metrics
	publisher    events.Publisher
	nearDueDays  int
	pendingTypes map[string]bool
}

func (c *core) now() time.Time {
	return c.clock().UTC()
}

// Lifecycle groups the engines that share one store and registry.
type Lifecycle struct {
	Workflows *WorkflowService
	Stages    *StageEngine
	SLA       *SLATracker
	Pendings  *PendingRegistry
	Protocols *ProtocolService
}

// New wires the lifecycle engines around st and registry.
func New(st store.Store, registry *definition.Registry, opts ...Option) *Lifecycle {
	c := &core{
		store:        st,
		registry:     registry,
		cal:          calendar.Weekends{Location: time.UTC},
		clock:        time.Now,
		logger:       zap.NewNop(),
		publisher:    events.Nop{},
		nearDueDays:  defaultNearDueDays,
		pendingTypes: make(map[string]bool),
	}
	for _, t := range model.PendingTypes {
		c.pendingTypes[t] = true
	}
	for _, opt := range opts {
		opt(c)
	}

	return &Lifecycle{
		Workflows: &WorkflowService{core: c},
		Stages:    &StageEngine{core: c},
		SLA:       &SLATracker{core: c},
		Pendings:  &PendingRegistry{core: c},
		Protocols: &ProtocolService{core: c},
	}
}

// update runs fn against protocolID in one store transaction and flushes the
// collected events once it commits.
func (c *core) update(ctx context.Context, protocolID string, fn func(tx store.Tx, ob *outbox) error) error {
	ob := &outbox{}
	err := c.store.Update(ctx, protocolID, func(tx store.Tx) error {
		ob.reset()
		return fn(tx, ob)
	})
	if err != nil {
		return err
	}
	c.flush(ctx, ob)
	return nil
}

// view runs fn against a consistent read of protocolID.
func (c *core) view(ctx context.Context, protocolID string, fn func(tx store.Tx) error) error {
	return c.store.View(ctx, protocolID, fn)
}
