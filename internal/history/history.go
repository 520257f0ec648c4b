// Package history implements the append-only status-history log: one CSV row per session whose status is updated on a Monitor
// Loop tick, plus a retention query used by /api/timeline/raw and the
// idempotent clear_older_than housekeeping operation.
package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/overcode/overcode/internal/types"
)

// MaxActivityLength bounds the activity field on write.
const MaxActivityLength = 100

// Header is the CSV header row.
var Header = []string{"timestamp", "agent", "status", "activity"}

// Entry is one row of the status history log.
type Entry struct {
	Timestamp time.Time
	Agent     string
	Status    types.AgentStatus
	Activity  string
}

// Log appends to, and queries, <state_dir>/<group>/status_history.csv.
type Log struct {
	mu   sync.Mutex
	path string
}

// New constructs a Log rooted at <stateDir>/<group>/status_history.csv.
func New(stateDir, group string) *Log {
	return &Log{path: filepath.Join(stateDir, group, "status_history.csv")}
}

// Append writes one row, truncating activity to MaxActivityLength.
func (l *Log) Append(timestamp time.Time, agent string, status types.AgentStatus, activity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(activity) > MaxActivityLength {
		activity = activity[:MaxActivityLength]
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("history: failed to create directory: %w", err)
	}

	needsHeader := false
	if info, err := os.Stat(l.path); err != nil || info.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("history: failed to open log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("history: failed to write header: %w", err)
		}
	}
	row := []string{timestamp.UTC().Format(time.RFC3339), agent, string(status), activity}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("history: failed to write row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// RawSince returns every row within the last `since` duration of now.
// Rows with a malformed timestamp are skipped silently.
func (l *Log) RawSince(since time.Duration, now time.Time) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: failed to open log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	cutoff := now.Add(-since)
	var entries []Entry
	first := true
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if first {
			first = false
			if len(record) > 0 && record[0] == Header[0] {
				continue
			}
		}
		if len(record) < 4 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			continue // malformed timestamp, skipped silently
		}
		if ts.Before(cutoff) {
			continue
		}
		entries = append(entries, Entry{
			Timestamp: ts,
			Agent:     record[1],
			Status:    types.AgentStatus(record[2]),
			Activity:  record[3],
		})
	}
	return entries, nil
}

// ClearOlderThan rewrites the log keeping only rows newer than
// `hours`. Idempotent: a second call with nothing left to remove is a
// no-op.
func (l *Log) ClearOlderThan(hours int, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("history: failed to open log: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	var kept [][]string
	first := true
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if first {
			first = false
			if len(record) > 0 && record[0] == Header[0] {
				continue
			}
		}
		if len(record) < 4 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil || ts.Before(cutoff) {
			continue
		}
		kept = append(kept, record)
	}
	f.Close()

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".status-history-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("history: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return fmt.Errorf("history: failed to write header: %w", err)
	}
	for _, row := range kept {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("history: failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: failed to close temp file: %w", err)
	}
	return os.Rename(tmpPath, l.path)
}
