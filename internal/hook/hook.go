// Package hook implements the Hook Receiver: a short-lived process the
// owning CLI invokes out-of-band at lifecycle events. It writes the
// session's authoritative hook-state marker and, for UserPromptSubmit,
// may block the prompt when the session's budget is exceeded.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/overcode/overcode/internal/presence"
	"github.com/overcode/overcode/internal/types"
)

// Event is the closed set of lifecycle events a hook invocation may
// report.
type Event string

const (
	EventUserPromptSubmit Event = "UserPromptSubmit"
	EventPostToolUse      Event = "PostToolUse"
	EventStop             Event = "Stop"
	EventPermissionRequest Event = "PermissionRequest"
	EventSessionEnd       Event = "SessionEnd"
)

func (e Event) recognized() bool {
	switch e {
	case EventUserPromptSubmit, EventPostToolUse, EventStop, EventPermissionRequest, EventSessionEnd:
		return true
	default:
		return false
	}
}

// Input is the JSON document read from standard input.
type Input struct {
	HookEventName Event  `json:"hook_event_name"`
	ToolName      string `json:"tool_name,omitempty"`
}

// StateRecord is the document written to
// <state_dir>/<group>/hook_state_<name>.json.
type StateRecord struct {
	Event     Event     `json:"event"`
	ToolName  string    `json:"tool_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BlockExitCode is the distinguished exit code the host CLI interprets
// as "block this prompt".
const BlockExitCode = 2

// HookStatePath returns <state_dir>/<group>/hook_state_<name>.json.
func HookStatePath(stateDir, group, name string) string {
	return filepath.Join(stateDir, group, "hook_state_"+name+".json")
}

// MonitorStatePath returns <state_dir>/<group>/monitor_daemon_state.json.
func MonitorStatePath(stateDir, group string) string {
	return filepath.Join(stateDir, group, "monitor_daemon_state.json")
}

// WriteState atomically writes the session's hook-state marker.
func WriteState(stateDir, group, name string, record StateRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("hook: failed to marshal state record: %w", err)
	}

	path := HookStatePath(stateDir, group, name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("hook: failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hook-state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("hook: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("hook: failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hook: failed to close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// ReadMonitorState loads the MonitorState snapshot written by the
// Monitor Loop.
func ReadMonitorState(stateDir, group string) (types.MonitorState, error) {
	var state types.MonitorState
	data, err := os.ReadFile(MonitorStatePath(stateDir, group))
	if err != nil {
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("hook: failed to parse monitor state: %w", err)
	}
	return state, nil
}

// FindSessionByName returns the session projection with the given name,
// or nil if absent.
func FindSessionByName(state types.MonitorState, name string) *types.SessionProjection {
	for i := range state.Sessions {
		if state.Sessions[i].Name == name {
			return &state.Sessions[i]
		}
	}
	return nil
}

// Env bundles the environment-derived inputs to Run.
type Env struct {
	SessionName      string
	MultiplexerGroup string
	StateDir         string
}

// FromOSEnv reads SESSION_NAME, MULTIPLEXER_GROUP and the given state
// directory. Either variable missing is reported via ok=false.
func FromOSEnv(stateDir string) (Env, bool) {
	name := os.Getenv("SESSION_NAME")
	group := os.Getenv("MULTIPLEXER_GROUP")
	if name == "" || group == "" {
		return Env{}, false
	}
	return Env{SessionName: name, MultiplexerGroup: group, StateDir: stateDir}, true
}

// TimeContext renders the one-line "time context" string,
// including only the fields whose underlying data is available.
func TimeContext(session *types.AgentSession, signal presence.Signal, now time.Time) string {
	parts := []string{fmt.Sprintf("Clock: %s", now.Format("15:04 MST"))}

	parts = append(parts, fmt.Sprintf("User: %s", signal.Presence()))

	if inOffice, known := signal.Office(); known {
		office := "no"
		if inOffice {
			office = "yes"
		}
		parts = append(parts, fmt.Sprintf("Office: %s", office))
	}

	if session != nil {
		uptime := now.Sub(session.StartTime)
		parts = append(parts, fmt.Sprintf("Uptime: %s", formatDuration(uptime)))

		if session.Heartbeat != nil && !session.Heartbeat.Paused {
			parts = append(parts, fmt.Sprintf("Heartbeat: %s (next: %s)", formatFrequency(session.Heartbeat.IntervalSeconds), nextHeartbeat(session.Heartbeat, now)))
		}
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += " | " + p
	}
	return out
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
}

func formatFrequency(intervalSeconds int) string {
	return formatDuration(time.Duration(intervalSeconds) * time.Second)
}

func nextHeartbeat(hb *types.Heartbeat, now time.Time) string {
	if hb.LastFired == nil {
		return "now"
	}
	due := hb.LastFired.Add(time.Duration(hb.IntervalSeconds) * time.Second)
	remaining := due.Sub(now)
	if remaining <= 0 {
		return "now"
	}
	return formatDuration(remaining)
}

// Run executes the single-shot hook contract against stdin and returns
// the process exit code. Unknown events, missing environment, and
// malformed input all cause a silent exit code 0.
func Run(stdin io.Reader, stderr, stdout io.Writer, env Env, presenceSignal presence.Signal, now time.Time) int {
	if env.SessionName == "" || env.MultiplexerGroup == "" {
		return 0
	}

	raw, err := io.ReadAll(stdin)
	if err != nil {
		return 0
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return 0
	}
	if !input.HookEventName.recognized() {
		return 0
	}

	record := StateRecord{
		Event:     input.HookEventName,
		ToolName:  input.ToolName,
		Timestamp: now,
	}
	if err := WriteState(env.StateDir, env.MultiplexerGroup, env.SessionName, record); err != nil {
		fmt.Fprintf(stderr, "hook: failed to write state: %v\n", err)
		return 0
	}

	if input.HookEventName != EventUserPromptSubmit {
		return 0
	}

	state, err := ReadMonitorState(env.StateDir, env.MultiplexerGroup)
	if err != nil {
		return 0
	}
	session := FindSessionByName(state, env.SessionName)
	if session == nil {
		return 0
	}

	if session.BudgetExceeded && session.CostBudgetUSD != nil {
		fmt.Fprintf(stderr, "Budget exceeded: estimated cost $%.2f exceeds budget $%.2f\n",
			session.Stats.EstimatedCostUSD, *session.CostBudgetUSD)
		return BlockExitCode
	}

	fmt.Fprintln(stdout, TimeContext(&session.AgentSession, presenceSignal, now))
	return 0
}
