package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/digiurban/lifecycle/model"
)

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
	IsConnected() bool
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// NATSPublisher publishes events as JSON on lifecycle.<type> subjects.
type NATSPublisher struct {
	conn   natsConn
	mu     sync.Mutex
	closed bool
}

// ConnectNATS dials the broker and returns a publisher bound to it.
func ConnectNATS(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{nats.Name(cfg.Name)}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	return newNATSPublisher(nc), nil
}

func newNATSPublisher(conn natsConn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev model.LifecycleEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("publisher closed")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if err := p.conn.Publish(Subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close drains the connection. Calling Close twice is a no-op.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Drain()
}

// HealthCheck reports whether the broker connection is up.
func (p *NATSPublisher) HealthCheck(_ context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}
