// Package events provides the publish/subscribe plumbing that carries
// the Monitor Loop's attention bells out to the notification sink.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of events Overcode publishes.
type Type string

const (
	// TypeAttention is the Monitor Loop's coalesced attention bell: one
	// or more sessions transitioned into waiting_user this tick.
	TypeAttention Type = "attention"
	// TypeBudgetExceeded fires the tick a session's accrued cost first
	// crosses its configured budget.
	TypeBudgetExceeded Type = "budget_exceeded"
	// TypeAgentDone fires when a session's standing orders are marked
	// complete and its status becomes done.
	TypeAgentDone Type = "agent_done"
	// TypeAgentError fires when a session's status becomes error.
	TypeAgentError Type = "agent_error"
	// TypeSupervisorDecision fires whenever the Supervisor acts on a
	// waiting session (steer, sleep, escalate).
	TypeSupervisorDecision Type = "supervisor_decision"
	// TypePeerUnreachable fires when a federation peer poll fails.
	TypePeerUnreachable Type = "peer_unreachable"
)

// Priority constants, ordered most to least urgent (lower is more
// urgent, matching the classic convention).
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// Event is one published occurrence, addressed to a target (a session
// name, or "all").
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// New constructs an Event with a fresh ID and the given creation time
// (callers supply `now` rather than calling time.Now() directly, so
// that event construction stays deterministic under test).
func New(typ Type, source, target string, priority int, payload map[string]interface{}, now time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: now,
	}
}
