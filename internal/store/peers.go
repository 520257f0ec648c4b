package store

import (
	"database/sql"
	"fmt"

	"github.com/overcode/overcode/internal/types"
)

// PeerCache durably records each federation peer's last-known
// reachability in the federation_peers table. The daemon constructs one
// but neither saves nor loads peer state through it.
type PeerCache struct {
	db *DB
}

// NewPeerCache wraps db as a federation-peer reachability cache.
func NewPeerCache(db *DB) *PeerCache {
	return &PeerCache{db: db}
}

// Save upserts one peer's state.
func (c *PeerCache) Save(state types.PeerState) error {
	_, err := c.db.conn.Exec(
		`INSERT INTO federation_peers (name, reachable, last_error, last_polled_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET reachable = excluded.reachable,
		   last_error = excluded.last_error, last_polled_at = excluded.last_polled_at`,
		state.Name, state.Reachable, state.LastError, state.LastPolledAt,
	)
	if err != nil {
		return fmt.Errorf("store: failed to upsert peer state: %w", err)
	}
	return nil
}

// Load returns every cached peer's last-known state, keyed by name.
func (c *PeerCache) Load() (map[string]types.PeerState, error) {
	rows, err := c.db.conn.Query(`SELECT name, reachable, last_error, last_polled_at FROM federation_peers`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to query peer cache: %w", err)
	}
	defer rows.Close()

	out := make(map[string]types.PeerState)
	for rows.Next() {
		var state types.PeerState
		var lastError sql.NullString
		if err := rows.Scan(&state.Name, &state.Reachable, &lastError, &state.LastPolledAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan peer cache row: %w", err)
		}
		state.LastError = lastError.String
		out[state.Name] = state
	}
	return out, rows.Err()
}
