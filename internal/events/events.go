package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"codeflow/internal/config"
)

// Type names an artifact lifecycle transition.
type Type string

const (
	TypeSubmitted Type = "submitted"
	TypeProcessed Type = "processed"
	TypeFailed    Type = "failed"
	TypeRetried   Type = "retried"
	TypeDeleted   Type = "deleted"
)

// Event is the JSON body published for each transition.
type Event struct {
	Type        Type      `json:"type"`
	ArtifactID  int64     `json:"artifact_id"`
	Name        string    `json:"name,omitempty"`
	ContentRef  string    `json:"content_ref,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	FlowError   string    `json:"flow_error,omitempty"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Duration    float64   `json:"duration_seconds,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on a NATS connection.
type NATSPublisher struct {
	nc     conn
	prefix string
}

// Connect dials NATS at url and returns a publisher using subject prefix.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("codeflow"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(nc, prefix), nil
}

func newNATSPublisher(nc conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "codeflow"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + ".artifact." + string(t)
}

// Publish marshals event and publishes it. OccurredAt defaults to now.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Close drains the connection so buffered events are flushed.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// NewPublisher returns a NATS publisher when events are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg *config.Config) (Publisher, error) {
	if cfg == nil || strings.TrimSpace(cfg.Events.NATSURL) == "" {
		return Noop{}, nil
	}
	return Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() {}
