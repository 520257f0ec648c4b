// Package monitor implements the Monitor Loop: a single
// long-running, cancellation-aware ticker task that scrapes each local
// session's pane, classifies it, feeds the accumulator, flushes the
// state document, and wakes the Supervisor Loop.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/overcode/overcode/internal/classifier"
	"github.com/overcode/overcode/internal/hook"
	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/presence"
	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/types"
)

// DaemonVersion is stamped into every MonitorState snapshot.
const DaemonVersion = "overcode/0.1"

// DefaultTickInterval is the default tick period τ.
const DefaultTickInterval = 5 * time.Second

// DefaultMaxCaptureLines bounds each pane capture.
const DefaultMaxCaptureLines = 50

// ShutdownGrace bounds the loop's final flush on cancellation.
const ShutdownGrace = 5 * time.Second

// PeerSnapshotReader opportunistically supplies federation peer
// snapshots; a nil reader or a reader returning an error is treated as
// "nothing available this tick", never a fatal condition.
type PeerSnapshotReader interface {
	ReadSnapshots(ctx context.Context) (map[string][]*types.AgentSession, error)
}

// PresenceReader opportunistically supplies the presence signal; absence is not an error.
type PresenceReader interface {
	Read() (presence.Signal, error)
}

// AttentionSink receives coalesced attention-bell notifications: at most one call per tick, naming every session that
// transitioned to waiting_user since it was last visited.
type AttentionSink interface {
	NotifyAttention(names []string)
}

// HistoryWriter appends one status-history row per updated session.
type HistoryWriter interface {
	Append(timestamp time.Time, agent string, status types.AgentStatus, activity string) error
}

// SupervisorSignal is non-blockingly notified at the end of every tick.
type SupervisorSignal interface {
	Signal()
}

// Loop is the Monitor Loop's configuration and dependencies.
type Loop struct {
	Registry  *registry.Registry
	Adapter   multiplexer.Adapter
	Group     string
	StateDir  string
	Strategy  classifier.Strategy
	MaxLines  int
	Interval  time.Duration

	Peers      PeerSnapshotReader
	Presence   PresenceReader
	Attention  AttentionSink
	History    HistoryWriter
	Supervisor SupervisorSignal

	// visited tracks, per session id, whether an attention bell has
	// already fired for its current waiting_user stretch.
	visited map[string]bool

	loopCounter  int64
	startedAt    time.Time
	lastPresence presence.Signal
}

// LastPresence returns the most recently read presence signal, or the
// zero (unknown/absent) Signal if none has been read yet.
func (l *Loop) LastPresence() presence.Signal {
	return l.lastPresence
}

// NewLoop constructs a Loop with package defaults filled in. stateDir is
// the root under which <group>/monitor_daemon_state.json is written; it
// may be left empty in tests that don't exercise the snapshot file.
func NewLoop(reg *registry.Registry, adapter multiplexer.Adapter, group string, stateDir string) *Loop {
	return &Loop{
		Registry: reg,
		Adapter:  adapter,
		Group:    group,
		StateDir: stateDir,
		Strategy: classifier.StrategyPolling,
		MaxLines: DefaultMaxCaptureLines,
		Interval: DefaultTickInterval,
		visited:  make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, ticking every l.Interval. On
// cancellation it performs one final tick-equivalent flush before
// returning, bounded by ShutdownGrace.
func (l *Loop) Run(ctx context.Context) {
	l.startedAt = time.Now()

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
			l.tick(flushCtx)
			cancel()
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick executes one pass of the loop's five steps.
func (l *Loop) tick(ctx context.Context) {
	l.loopCounter++

	// Step 1: peer snapshots, opportunistic.
	if l.Peers != nil {
		snapshots, err := l.Peers.ReadSnapshots(ctx)
		if err != nil {
			log.Printf("[MONITOR] peer snapshot read failed (non-fatal): %v", err)
		} else {
			for host, sessions := range snapshots {
				if err := l.Registry.MergeRemote(host, sessions); err != nil {
					log.Printf("[MONITOR] failed to merge peer %s: %v", host, err)
				}
			}
		}
	}

	// Step 2: presence signal, opportunistic.
	if l.Presence != nil {
		signal, err := l.Presence.Read()
		if err != nil {
			log.Printf("[MONITOR] presence read failed (non-fatal): %v", err)
		} else {
			l.lastPresence = signal
		}
	}

	// Step 3: per-session classify + accumulate.
	now := time.Now()
	sessions := l.Registry.ListVisible(types.VisibilityFilter{})

	var updates []registry.StatusUpdate
	var newlyWaiting []string

	for _, s := range sessions {
		if s.Status == types.StatusTerminated {
			continue
		}

		captureCtx, cancel := context.WithTimeout(ctx, multiplexer.DefaultCommandTimeout)
		text, err := l.Adapter.CapturePane(captureCtx, l.Group, s.MultiplexerWindow, l.MaxLines)
		cancel()
		if err != nil {
			log.Printf("[MONITOR] capture_pane failed for %s (treated as no output): %v", s.Name, err)
			text = ""
		}

		lines := splitLines(text)
		strategy := l.Strategy
		var hookState *classifier.HookState
		if s.HookDetectionEnabled {
			strategy = classifier.StrategyHook
			if data, err := os.ReadFile(hook.HookStatePath(l.StateDir, l.Group, s.Name)); err == nil {
				var rec hook.StateRecord
				if json.Unmarshal(data, &rec) == nil {
					hookState = &classifier.HookState{Event: string(rec.Event), ToolName: rec.ToolName, Timestamp: rec.Timestamp}
				}
			}
		}
		result := classifier.Classify(strategy, lines, hookState, s.Status, s.Stats.StateSince, now)

		updates = append(updates, registry.StatusUpdate{
			ID:              s.ID,
			Status:          result.Status,
			ActivitySummary: result.ActivitySummary,
		})

		if l.History != nil {
			if err := l.History.Append(now, s.Name, result.Status, result.ActivitySummary); err != nil {
				log.Printf("[MONITOR] history append failed for %s (non-fatal): %v", s.Name, err)
			}
		}

		if result.Status == types.StatusWaitingUser && s.Status != types.StatusWaitingUser {
			if !l.visited[s.ID] {
				newlyWaiting = append(newlyWaiting, s.Name)
			}
			l.visited[s.ID] = true
		} else if result.Status != types.StatusWaitingUser {
			delete(l.visited, s.ID)
		}
	}

	if err := l.Registry.ApplyStatusUpdates(updates, now); err != nil {
		log.Printf("[MONITOR] ApplyStatusUpdates encountered errors: %v", err)
	}

	// Step 4: serialize the full MonitorState snapshot atomically,
	// separately from the registry's own sessions.json.
	if l.StateDir != "" {
		if err := l.writeMonitorState(); err != nil {
			log.Printf("[MONITOR] failed to write monitor state snapshot: %v", err)
		}
	}

	if len(newlyWaiting) > 0 && l.Attention != nil {
		l.Attention.NotifyAttention(newlyWaiting)
	}

	// Step 5: wake the Supervisor Loop, non-blocking.
	if l.Supervisor != nil {
		l.Supervisor.Signal()
	}
}

// Snapshot builds the process-wide MonitorState for serving over the
// Control API or publishing on the bus.
func (l *Loop) Snapshot() types.MonitorState {
	sessions := l.Registry.All()
	projections := make([]types.SessionProjection, 0, len(sessions))
	for _, s := range sessions {
		projections = append(projections, types.SessionProjection{AgentSession: *s})
	}

	return types.MonitorState{
		LoopCounter:   l.loopCounter,
		TickInterval:  l.Interval.Seconds(),
		StartedAt:     l.startedAt,
		DaemonVersion: DaemonVersion,
		Sessions:      projections,
	}
}

// monitorStatePath returns <state_dir>/<group>/monitor_daemon_state.json.
func (l *Loop) monitorStatePath() string {
	return filepath.Join(l.StateDir, l.Group, "monitor_daemon_state.json")
}

// writeMonitorState rewrites the snapshot file atomically: write to a
// sibling temp file, then rename over the target, mirroring the
// registry's own atomic-replace discipline.
func (l *Loop) writeMonitorState() error {
	data, err := json.MarshalIndent(l.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("monitor: failed to marshal state snapshot: %w", err)
	}

	dir := filepath.Dir(l.monitorStatePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("monitor: failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".monitor-state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("monitor: failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("monitor: failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("monitor: failed to close temp state file: %w", err)
	}
	return os.Rename(tmpPath, l.monitorStatePath())
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
