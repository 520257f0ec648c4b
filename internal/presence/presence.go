// Package presence reads the optional, externally-populated presence
// signal at <state_dir>/presence_log.csv. Overcode never
// writes this file itself; it only reads the single most recent row and
// applies a staleness horizon of 2x the tick interval.
package presence

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// State is the closed set of raw presence states a row may carry.
type State int

const (
	StateLockedOrSleep State = 1
	StateInactive      State = 2
	StateActive        State = 3
)

// UserPresence is the classifier-facing presence label.
type UserPresence string

const (
	UserActive   UserPresence = "active"
	UserInactive UserPresence = "inactive"
	UserLocked   UserPresence = "locked"
	UserUnknown  UserPresence = "unknown"
)

// Signal is the most recent presence row, or the unknown zero value.
type Signal struct {
	Timestamp      time.Time
	State          State
	IdleSeconds    int
	Locked         bool
	InferredSleep  bool
	Present        bool // false if no row was found or it is stale
}

// Presence derives the UserPresence label from a Signal.
func (s Signal) Presence() UserPresence {
	if !s.Present {
		return UserUnknown
	}
	switch s.State {
	case StateLockedOrSleep:
		return UserLocked
	case StateInactive:
		return UserInactive
	case StateActive:
		return UserActive
	default:
		return UserUnknown
	}
}

// Office reports whether the user appears to be at their desk (not
// locked, not asleep). Returns (false, false) when unknown.
func (s Signal) Office() (inOffice bool, known bool) {
	if !s.Present {
		return false, false
	}
	return !s.Locked && !s.InferredSleep, true
}

// Reader reads presence_log.csv under a state directory.
type Reader struct {
	path            string
	stalenessWindow time.Duration
}

// NewReader constructs a Reader with the staleness horizon set to
// 2x tickInterval.
func NewReader(stateDir string, tickInterval time.Duration) *Reader {
	return &Reader{
		path:            stateDir + "/presence_log.csv",
		stalenessWindow: 2 * tickInterval,
	}
}

// Read returns the most recent presence row, or an absent/stale Signal
// if the file is missing, empty, unparseable, or older than the
// staleness horizon. A missing or malformed file is never an error; it
// is reported as presence = unknown.
func (r *Reader) Read() (Signal, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Signal{}, nil
		}
		return Signal{}, fmt.Errorf("presence: failed to open %s: %w", r.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var last []string
	for {
		record, err := reader.Read()
		if err != nil {
			break // EOF or malformed trailing row; use the last good record
		}
		last = record
	}
	if last == nil {
		return Signal{}, nil
	}

	signal, ok := parseRow(last)
	if !ok {
		return Signal{}, nil
	}
	if time.Since(signal.Timestamp) > r.stalenessWindow {
		return Signal{}, nil
	}
	return signal, nil
}

func parseRow(row []string) (Signal, bool) {
	if len(row) < 5 {
		return Signal{}, false
	}
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return Signal{}, false
	}
	stateInt, err := strconv.Atoi(row[1])
	if err != nil {
		return Signal{}, false
	}
	idleSeconds, _ := strconv.Atoi(row[2])
	locked := row[3] == "1" || row[3] == "true"
	inferredSleep := row[4] == "1" || row[4] == "true"

	return Signal{
		Timestamp:     ts,
		State:         State(stateInt),
		IdleSeconds:   idleSeconds,
		Locked:        locked,
		InferredSleep: inferredSleep,
		Present:       true,
	}, true
}
