package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// OutboxStore wraps another Bus with the transactional-outbox pattern: every
// Publish first durably records the event in the event_outbox table (see
// internal/db/schema.sql), then attempts delivery through the wrapped bus.
// A delivery failure leaves the row unpublished rather than failing the
// call, and Drain later retries every unpublished row; this is how the
// change-notification bus keeps its at-least-once guarantee across a
// NATS outage instead of merely hoping Publish never errors.
type OutboxStore struct {
	db  *sql.DB
	bus Bus
}

// NewOutboxStore wires an outbox in front of bus using db. The event_outbox
// table is part of the core schema migration, not created here.
func NewOutboxStore(db *sql.DB, bus Bus) *OutboxStore {
	return &OutboxStore{db: db, bus: bus}
}

// Publish records event in the outbox and hands it to the wrapped bus.
// Publish itself stays fire-and-forget from the caller's perspective: a
// wrapped-bus error is swallowed here and never reaches the caller, because
// the row is already durable and Drain will pick it up on the next sweep.
func (s *OutboxStore) Publish(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == "" {
		return fmt.Errorf("events: outbox: event ID is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: outbox: marshal event: %w", err)
	}

	clientID := event.Metadata.TenantID
	if clientID == "" {
		clientID = "unknown"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_outbox (event_id, client_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, event.ID, clientID, event.Type, payload)
	if err != nil {
		return fmt.Errorf("events: outbox: insert: %w", err)
	}

	if err := s.bus.Publish(ctx, event); err != nil {
		return nil
	}
	return s.markPublished(ctx, event.ID)
}

func (s *OutboxStore) markPublished(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE event_outbox SET published_at = now() WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("events: outbox: mark published: %w", err)
	}
	return nil
}

// Drain re-attempts delivery for up to limit outbox rows that were never
// confirmed published, oldest first, and returns how many it cleared. A
// worker runs this on a ticker so a bus outage doesn't silently drop
// events that were durably recorded but never delivered.
func (s *OutboxStore) Drain(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, payload
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("events: outbox: query unpublished: %w", err)
	}

	type pendingRow struct {
		eventID string
		payload []byte
	}
	var pending []pendingRow
	for rows.Next() {
		var r pendingRow
		if err := rows.Scan(&r.eventID, &r.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("events: outbox: scan: %w", err)
		}
		pending = append(pending, r)
	}
	closeErr := rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if closeErr != nil {
		return 0, closeErr
	}

	drained := 0
	for _, r := range pending {
		var event Event
		if err := json.Unmarshal(r.payload, &event); err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, event); err != nil {
			continue
		}
		if err := s.markPublished(ctx, r.eventID); err != nil {
			continue
		}
		drained++
	}
	return drained, nil
}

// Subscribe delegates to the wrapped bus; the outbox only intercepts the
// publish path.
func (s *OutboxStore) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return s.bus.Subscribe(ctx, topic, handler)
}

// Close closes the wrapped bus.
func (s *OutboxStore) Close() error {
	return s.bus.Close()
}

var _ Bus = (*OutboxStore)(nil)
