// Package supervisor implements the remediation-agent decision engine of
// deciding whether a remediation agent should be launched,
// composing its launch context, and tracking its interventions.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/types"
)

// Reason is the closed set of should_launch outcomes.
type Reason string

const (
	ReasonNoSessions               Reason = "no_sessions"
	ReasonAlreadyRunning           Reason = "already_running"
	ReasonWaitingUserNoInstructions Reason = "waiting_user_no_instructions"
	ReasonWithInstructions         Reason = "with_instructions"
	ReasonNonUserBlocked           Reason = "non_user_blocked"
)

// DefaultActionPhrases and DefaultNoActionPhrases are the default
// used when a Config does not override them.
var (
	DefaultActionPhrases   = []string{"approved", "sent", "told", "instructed"}
	DefaultNoActionPhrases = []string{"no intervention needed"}
)

// FilterCandidates returns the non-green, non-asleep, non-remediation-agent
// sessions whose standing_orders does not begin with DO_NOTHING.
func FilterCandidates(sessions []*types.AgentSession, remediationAgentID string) []*types.AgentSession {
	var out []*types.AgentSession
	for _, s := range sessions {
		if s.Status.IsGreen() {
			continue
		}
		if s.IsAsleep {
			continue
		}
		if s.ID == remediationAgentID {
			continue
		}
		if IsDoNothing(s.StandingOrders) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ShouldLaunch implements the launch decision table.
func ShouldLaunch(candidates []*types.AgentSession, remediationRunning bool) (bool, Reason) {
	if len(candidates) == 0 {
		return false, ReasonNoSessions
	}
	if remediationRunning {
		return false, ReasonAlreadyRunning
	}

	allWaitingUser := true
	anyStandingOrders := false
	for _, c := range candidates {
		if c.Status != types.StatusWaitingUser {
			allWaitingUser = false
		}
		if strings.TrimSpace(c.StandingOrders) != "" {
			anyStandingOrders = true
		}
	}

	if allWaitingUser && !anyStandingOrders {
		return false, ReasonWaitingUserNoInstructions
	}
	if anyStandingOrders {
		return true, ReasonWithInstructions
	}
	return true, ReasonNonUserBlocked
}

// statusEmoji is a best-effort at-a-glance marker for the launch context
// string; not part of the wire AgentStatus itself.
var statusEmoji = map[types.AgentStatus]string{
	types.StatusRunning:           "🟢",
	types.StatusRunningHeartbeat:  "🟢",
	types.StatusWaitingUser:       "🟡",
	types.StatusWaitingApproval:   "🟠",
	types.StatusWaitingSupervisor: "🟠",
	types.StatusWaitingHeartbeat:  "🟡",
	types.StatusNoInstructions:    "⚪",
	types.StatusError:             "🔴",
	types.StatusAsleep:            "💤",
	types.StatusTerminated:        "⚫",
	types.StatusDone:              "✅",
}

// BuildLaunchContext composes the remediation agent's initial prompt:
// a mission statement, one block per candidate, and a closing pointer to
// the shared state document.
func BuildLaunchContext(candidates []*types.AgentSession, stateDocumentPath string) string {
	var b strings.Builder
	b.WriteString("You are the remediation agent for this fleet of coding agents. ")
	b.WriteString("Review each blocked agent below and, where appropriate, steer it " +
		"toward its standing orders by sending it instructions through its pane.\n\n")

	for _, c := range candidates {
		emoji := statusEmoji[c.Status]
		if emoji == "" {
			emoji = "❔"
		}
		orders := c.StandingOrders
		if orders == "" {
			orders = "No autopilot instructions set"
		}
		fmt.Fprintf(&b, "%s %s (window %s)\n   Autopilot: %s\n", emoji, c.Name, c.MultiplexerWindow, orders)
		if c.Repo != "" {
			fmt.Fprintf(&b, "   Repo: %s\n", c.Repo)
		}
	}

	fmt.Fprintf(&b, "\nConsult the shared state document at %s for full session detail "+
		"before intervening.\n", stateDocumentPath)
	return b.String()
}

// Launcher spawns the remediation agent via the Multiplexer Adapter,
// using the same command that drives ordinary agents.
type Launcher struct {
	Adapter           multiplexer.Adapter
	Group             string
	WorkingDirectory  string
	Command           []string
	StateDocumentPath string
}

// LaunchResult records what a successful Launch did, for the caller to
// fold into its RemediationStats.
type LaunchResult struct {
	WindowHandle string
	StartedAt    time.Time
}

// Launch opens a new remediation-agent window seeded with the composed
// launch context as its initial prompt.
func (l *Launcher) Launch(ctx context.Context, candidates []*types.AgentSession) (*LaunchResult, error) {
	handle, err := l.Adapter.NewWindow(ctx, l.Group, "supervisor", l.WorkingDirectory)
	if err != nil {
		return nil, fmt.Errorf("supervisor: failed to open remediation window: %w", err)
	}

	launchContext := BuildLaunchContext(candidates, l.StateDocumentPath)
	if err := l.Adapter.SendText(ctx, l.Group, handle, launchContext, true); err != nil {
		return nil, fmt.Errorf("supervisor: failed to send launch context: %w", err)
	}

	return &LaunchResult{WindowHandle: handle, StartedAt: time.Now()}, nil
}

// InterventionPhrases configures Track's keyword lists; zero values fall
// back to the package defaults.
type InterventionPhrases struct {
	ActionPhrases   []string
	NoActionPhrases []string
}

func (p InterventionPhrases) actionPhrases() []string {
	if len(p.ActionPhrases) > 0 {
		return p.ActionPhrases
	}
	return DefaultActionPhrases
}

func (p InterventionPhrases) noActionPhrases() []string {
	if len(p.NoActionPhrases) > 0 {
		return p.NoActionPhrases
	}
	return DefaultNoActionPhrases
}

// Track scans the remediation agent's captured pane text for
// intervention lines: a line is an intervention iff it contains
// "<name> - " for a known local session name, matches an action phrase,
// and matches no no-action phrase. Returns the names whose steer_count
// should be incremented.
func Track(paneLines []string, localNames []string, phrases InterventionPhrases) []string {
	actionPhrases := phrases.actionPhrases()
	noActionPhrases := phrases.noActionPhrases()

	var steered []string
	for _, line := range paneLines {
		lower := strings.ToLower(line)

		if containsAny(lower, noActionPhrases) {
			continue
		}
		if !containsAny(lower, actionPhrases) {
			continue
		}

		for _, name := range localNames {
			if strings.Contains(line, name+" - ") {
				steered = append(steered, name)
				break
			}
		}
	}
	return steered
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
