package store

import (
	"fmt"
	"time"

	"github.com/overcode/overcode/internal/history"
	"github.com/overcode/overcode/internal/types"
)

// HistoryMirror indexes the same rows internal/history.Log appends to
// its flat CSV, so /api/timeline/raw can serve a bounded window without
// scanning the whole file once it grows large.
type HistoryMirror struct {
	db *DB
}

// NewHistoryMirror wraps db as a queryable status-history index.
func NewHistoryMirror(db *DB) *HistoryMirror {
	return &HistoryMirror{db: db}
}

// Append records one status-change row.
func (h *HistoryMirror) Append(timestamp time.Time, agent string, status types.AgentStatus, activity string) error {
	if len(activity) > history.MaxActivityLength {
		activity = activity[:history.MaxActivityLength]
	}
	_, err := h.db.conn.Exec(
		`INSERT INTO status_history (timestamp, agent, status, activity) VALUES (?, ?, ?, ?)`,
		timestamp.UTC(), agent, string(status), activity,
	)
	if err != nil {
		return fmt.Errorf("store: failed to insert status history row: %w", err)
	}
	return nil
}

// RawSince returns every row within the last `since` duration of now.
func (h *HistoryMirror) RawSince(since time.Duration, now time.Time) ([]history.Entry, error) {
	rows, err := h.db.conn.Query(
		`SELECT timestamp, agent, status, activity FROM status_history WHERE timestamp >= ? ORDER BY timestamp ASC`,
		now.Add(-since).UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query status history: %w", err)
	}
	defer rows.Close()

	var out []history.Entry
	for rows.Next() {
		var e history.Entry
		var status string
		if err := rows.Scan(&e.Timestamp, &e.Agent, &status, &e.Activity); err != nil {
			return nil, fmt.Errorf("store: failed to scan status history row: %w", err)
		}
		e.Status = types.AgentStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearOlderThan deletes rows beyond the retention window.
func (h *HistoryMirror) ClearOlderThan(hours int, now time.Time) error {
	_, err := h.db.conn.Exec(
		`DELETE FROM status_history WHERE timestamp < ?`,
		now.Add(-time.Duration(hours)*time.Hour).UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: failed to clear old status history rows: %w", err)
	}
	return nil
}
