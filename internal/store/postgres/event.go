package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/gavelhq/gavel/internal/event"
)

// EventStore persists the auction journal in the events table. One row
// per event, uniqueness on (aggregate_id, version) so a room's journal
// cannot fork.
type EventStore struct {
	db *sqlx.DB
}

// NewEventStore returns an EventStore on the given connection.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

// Append writes the events in one transaction. A session drains its
// buffer per mutation, so the batch is usually one or two events.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO events (aggregate_id, type, data, version, created_at)
	           VALUES ($1, $2, $3, $4, $5)`
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, q, e.AggregateID, e.Type, e.Data, e.Version, e.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, err)
		}
	}

	return tx.Commit()
}

// Load returns a room's journal ordered by version.
func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var events []event.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}

// LoadByType returns all events of one type across rooms, oldest first.
func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	var events []event.Event
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE type = $1 ORDER BY created_at ASC`, eventType)
	if err != nil {
		return nil, fmt.Errorf("loading events by type: %w", err)
	}
	return events, nil
}
