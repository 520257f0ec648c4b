package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/types"
)

// DefaultMinGap is the minimum spacing between two remediation-agent
// launches, matching the monitor tick cadence's own order of magnitude.
const DefaultMinGap = 2 * time.Minute

// Loop ticks FilterCandidates/ShouldLaunch/Launch/Track on an interval,
// driven by a monitor.Loop's SupervisorSignal callback rather than its
// own ticker: each Signal call runs at most one tick immediately, so the
// remediation agent reacts within one monitor tick of a session going
// stuck instead of waiting out a second, independent clock.
type Loop struct {
	Registry *registry.Registry
	Adapter  multiplexer.Adapter
	Group    string

	WorkingDirectory  string
	Command           []string
	StateDocumentPath string
	MinGap            time.Duration
	Phrases           InterventionPhrases

	mu               sync.Mutex
	running          bool
	remediationID    string
	remediationSince *time.Time
	lastLaunch       time.Time
	stats            types.RemediationStats
}

// NewLoop constructs a Loop with package defaults filled in.
func NewLoop(reg *registry.Registry, adapter multiplexer.Adapter, group string) *Loop {
	return &Loop{
		Registry: reg,
		Adapter:  adapter,
		Group:    group,
		Command:  []string{"claude"},
		MinGap:   DefaultMinGap,
	}
}

// Start enables Signal's launch decision; Stop disables it. Both are
// idempotent and safe to call from the Control API's daemon handlers.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	return nil
}

func (l *Loop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	return nil
}

// Signal runs one evaluate-and-maybe-launch pass, non-blocking from the
// caller's perspective (it never waits on the spawned window). It
// satisfies monitor.SupervisorSignal.
func (l *Loop) Signal() {
	go l.tick(context.Background())
}

func (l *Loop) tick(ctx context.Context) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	remediationRunning := l.remediationID != "" && l.Registry.Get(l.remediationID) != nil &&
		l.Registry.Get(l.remediationID).Status != types.StatusTerminated
	sinceLast := time.Since(l.lastLaunch)
	l.mu.Unlock()

	if remediationRunning {
		l.trackIntervention(ctx)
		return
	}

	if sinceLast < l.MinGap {
		return
	}

	candidates := FilterCandidates(l.Registry.ListVisible(types.VisibilityFilter{}), l.remediationIDSnapshot())
	launch, reason := ShouldLaunch(candidates, false)
	if !launch {
		return
	}
	log.Printf("[SUPERVISOR] launching remediation agent: %s", reason)

	session, err := l.Registry.Create("supervisor", l.WorkingDirectory, l.Command, registry.CreateOptions{
		ForbidRename: true,
	})
	if err != nil {
		log.Printf("[SUPERVISOR] failed to register remediation session: %v", err)
		return
	}

	launchContext := BuildLaunchContext(candidates, l.StateDocumentPath)
	if err := l.Registry.SendText(session.ID, launchContext, true); err != nil {
		log.Printf("[SUPERVISOR] failed to send launch context: %v", err)
	}

	startedAt := time.Now()
	l.mu.Lock()
	l.remediationID = session.ID
	l.remediationSince = &startedAt
	l.lastLaunch = startedAt
	l.stats.SupervisorLaunches++
	l.stats.SupervisorClaudeStartedAt = &startedAt
	l.mu.Unlock()
}

// trackIntervention captures the remediation agent's pane and bumps
// steer_count for every local session it appears to have steered.
func (l *Loop) trackIntervention(ctx context.Context) {
	l.mu.Lock()
	id := l.remediationID
	l.mu.Unlock()
	if id == "" {
		return
	}
	session := l.Registry.Get(id)
	if session == nil {
		return
	}

	captureCtx, cancel := context.WithTimeout(ctx, multiplexer.DefaultCommandTimeout)
	text, err := l.Adapter.CapturePane(captureCtx, l.Group, session.MultiplexerWindow, 200)
	cancel()
	if err != nil {
		return
	}

	var localNames []string
	for _, s := range l.Registry.ListVisible(types.VisibilityFilter{}) {
		if s.ID != id {
			localNames = append(localNames, s.Name)
		}
	}

	for _, name := range Track(splitLines(text), localNames, l.Phrases) {
		if target := l.Registry.GetByName(name); target != nil {
			if err := l.Registry.IncrementSteerCount(target.ID); err != nil {
				log.Printf("[SUPERVISOR] failed to record steer for %s: %v", name, err)
			}
		}
	}
}

func (l *Loop) remediationIDSnapshot() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remediationID
}

// Stats returns the accumulated RemediationStats for folding into
// MonitorState.
func (l *Loop) Stats() types.RemediationStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats
	if l.remediationID != "" {
		if session := l.Registry.Get(l.remediationID); session != nil && session.Status != types.StatusTerminated {
			stats.SupervisorClaudeTotalRunSecs += time.Since(*l.remediationSince).Seconds()
		}
	}
	return stats
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
