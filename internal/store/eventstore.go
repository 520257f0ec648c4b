package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/overcode/overcode/internal/events"
)

// EventStore implements events.Store over the shared DB's events table,
// with separate append, query, deliver and cleanup methods.
type EventStore struct {
	db *DB
}

// NewEventStore wraps db as an events.Store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

var _ events.Store = (*EventStore)(nil)

// Save persists an event with no delivered_at (pending).
func (s *EventStore) Save(event *events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("store: failed to marshal event payload: %w", err)
	}

	_, err = s.db.conn.Exec(
		`INSERT INTO events (id, type, source, target, priority, payload, created_at, delivered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		event.ID, event.Type, event.Source, event.Target, event.Priority, string(payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to insert event: %w", err)
	}
	return nil
}

// GetPending returns undelivered events addressed to target (or "all"),
// optionally filtered by type, ordered most-urgent-first.
func (s *EventStore) GetPending(target string, types []events.Type) ([]*events.Event, error) {
	query := `SELECT id, type, source, target, priority, payload, created_at
	          FROM events
	          WHERE delivered_at IS NULL AND (target = ? OR target = 'all')`
	args := []interface{}{target}

	if len(types) > 0 {
		placeholders := ""
		for i, t := range types {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(t))
		}
		query += fmt.Sprintf(" AND type IN (%s)", placeholders)
	}
	query += " ORDER BY priority ASC, created_at ASC"

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query pending events: %w", err)
	}
	defer rows.Close()

	var out []*events.Event
	for rows.Next() {
		var e events.Event
		var payloadJSON string
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.Target, &e.Priority, &payloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan event row: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("store: failed to unmarshal event payload: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkDelivered stamps delivered_at for eventID.
func (s *EventStore) MarkDelivered(eventID string) error {
	result, err := s.db.conn.Exec(`UPDATE events SET delivered_at = ? WHERE id = ?`, time.Now(), eventID)
	if err != nil {
		return fmt.Errorf("store: failed to mark event delivered: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("store: event not found: %s", eventID)
	}
	return nil
}

// Cleanup deletes delivered events older than olderThan.
func (s *EventStore) Cleanup(olderThan time.Duration) error {
	_, err := s.db.conn.Exec(
		`DELETE FROM events WHERE delivered_at IS NOT NULL AND created_at < ?`,
		time.Now().Add(-olderThan),
	)
	if err != nil {
		return fmt.Errorf("store: failed to clean up delivered events: %w", err)
	}
	return nil
}
