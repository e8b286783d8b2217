//go:build events_nats
// +build events_nats

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSBusConfig configures the NATS-backed Bus.
type NATSBusConfig struct {
	// URL is the NATS server URL, e.g. "nats://localhost:4222".
	URL string

	// Subject prefix for every published topic, so multiple data planes
	// can share a cluster without topic collisions.
	SubjectPrefix string
}

func DefaultNATSBusConfig() NATSBusConfig {
	return NATSBusConfig{URL: nats.DefaultURL}
}

// NATSBus publishes events over a NATS connection. Publish is fire-and-forget
// (at-least-once, no ack) as the change-notification bus contract
// requires; Subscribe exists so a replica of this same process can also act
// as a push collaborator during local development, but external push
// collaborators subscribe directly against NATS rather than through this
// type.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSBus connects to a NATS server and returns a ready-to-use Bus.
func NewNATSBus(cfg NATSBusConfig) (*NATSBus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	conn, err := nats.Connect(cfg.URL, nats.Name("carbonplane"))
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	return &NATSBus{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (b *NATSBus) subject(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + "." + topic
}

// Publish serialises the event to JSON and publishes it to the event's
// type as a NATS subject. The core requires no acknowledgement, so this
// returns as soon as the message is handed to the client's outbound
// buffer, matching nats.Conn.Publish's own fire-and-forget semantics.
func (b *NATSBus) Publish(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	payload, err := event.JSON()
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	if err := b.conn.Publish(b.subject(event.Type), payload); err != nil {
		return fmt.Errorf("events: nats publish: %w", err)
	}
	return nil
}

// Subscribe registers a handler for a NATS subject. Handlers run on the
// NATS client's own dispatch goroutine, so they must not block.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	_, err := b.conn.Subscribe(b.subject(topic), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("events: nats subscribe: %w", err)
	}
	return nil
}

// Close drains and closes the underlying NATS connection.
func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("events: nats drain: %w", err)
	}
	return nil
}
