// Package store is Overcode's durable SQLite backing: a replay buffer
// for the event bus, an indexed mirror of the status-history CSV, and
// a federation-peer reachability cache that survives a daemon restart.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
}

// Open creates the parent directory if needed, opens path in WAL mode,
// and applies the schema (idempotent: every statement is CREATE ... IF
// NOT EXISTS). Grounded on memory.NewMemoryDB's dial-string and
// connection-pool settings.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store: failed to create directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	db := &DB{conn: conn}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: failed to apply schema: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}
