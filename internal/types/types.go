// Package types holds the tagged record types shared across Overcode's
// components: tracked agent sessions, their accumulated statistics, and
// the process-wide monitor snapshot written to the state document.
package types

import "time"

// AgentStatus is the closed set of lifecycle states a tracked agent can
// be in.
type AgentStatus string

const (
	StatusRunning           AgentStatus = "running"
	StatusRunningHeartbeat  AgentStatus = "running_heartbeat"
	StatusWaitingUser       AgentStatus = "waiting_user"
	StatusWaitingApproval   AgentStatus = "waiting_approval"
	StatusWaitingSupervisor AgentStatus = "waiting_supervisor"
	StatusWaitingHeartbeat  AgentStatus = "waiting_heartbeat"
	StatusNoInstructions    AgentStatus = "no_instructions"
	StatusError             AgentStatus = "error"
	StatusAsleep            AgentStatus = "asleep"
	StatusTerminated        AgentStatus = "terminated"
	StatusDone              AgentStatus = "done"
)

// IsGreen reports whether the status belongs to the green set
// {running, running_heartbeat}: the agent is making progress unattended.
func (s AgentStatus) IsGreen() bool {
	return s == StatusRunning || s == StatusRunningHeartbeat
}

// IsTimeless reports whether the status accumulates no time at all
// (asleep, terminated).
func (s AgentStatus) IsTimeless() bool {
	return s == StatusAsleep || s == StatusTerminated
}

// Permissiveness controls how much latitude an agent is given.
type Permissiveness string

const (
	PermissivenessNormal     Permissiveness = "normal"
	PermissivenessPermissive Permissiveness = "permissive"
	PermissivenessBypass     Permissiveness = "bypass"
)

// Heartbeat is an agent's optional periodic nudge configuration.
type Heartbeat struct {
	IntervalSeconds int        `json:"interval_s"`
	LastFired       *time.Time `json:"last_fired,omitempty"`
	Paused          bool       `json:"paused"`
	Instruction     string     `json:"instruction,omitempty"`
}

// SessionStats are the per-agent time/token/cost accumulators.
type SessionStats struct {
	CurrentState         AgentStatus `json:"current_state"`
	StateSince           time.Time   `json:"state_since"`
	LastAccumulationTime time.Time   `json:"last_accumulation_time"`

	GreenSeconds    float64 `json:"green_seconds"`
	NonGreenSeconds float64 `json:"non_green_seconds"`
	SleepSeconds    float64 `json:"sleep_seconds"`

	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens"`
	CacheReadTokens  int64 `json:"cache_read_tokens"`
	TotalTokens      int64 `json:"total_tokens"`

	EstimatedCostUSD float64 `json:"estimated_cost_usd"`

	InteractionCount  int       `json:"interaction_count"`
	SteerCount        int       `json:"steer_count"`
	WorkDurations     []float64 `json:"work_durations"`
	MedianWorkSeconds float64   `json:"median_work_seconds"`

	// Written only by the external summarizer collaborator; Overcode never computes these itself.
	ActivitySummary        string `json:"activity_summary,omitempty"`
	ActivitySummaryContext string `json:"activity_summary_context,omitempty"`
}

// MaxWorkDurations bounds the work_durations list used for the running
// median, matching the classic bounded-history convention (e.g.
// metrics.MetricsCollector's maxHistory field).
const MaxWorkDurations = 200

// AgentSession is a tracked agent.
type AgentSession struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Host              string `json:"host"`
	MultiplexerWindow string `json:"multiplexer_window"`

	WorkingDirectory string   `json:"working_directory"`
	Repo             string   `json:"repo,omitempty"`
	Branch           string   `json:"branch,omitempty"`
	Command          []string `json:"command"`

	StartTime    time.Time  `json:"start_time"`
	Status       AgentStatus `json:"status"`
	IsAsleep     bool       `json:"is_asleep"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	StandingOrders         string         `json:"standing_orders,omitempty"`
	StandingOrdersComplete bool           `json:"standing_orders_complete"`
	Permissiveness         Permissiveness `json:"permissiveness"`
	AgentValue             int            `json:"agent_value"`
	CostBudgetUSD          *float64       `json:"cost_budget,omitempty"`
	BudgetExceeded         bool           `json:"budget_exceeded"`
	Annotation             string         `json:"annotation,omitempty"`
	Heartbeat              *Heartbeat     `json:"heartbeat,omitempty"`

	// TimeContextEnabled toggles the UserPromptSubmit time-context
	// output; HookDetectionEnabled chooses the hook vs. polling classifier
	// strategy.
	TimeContextEnabled  bool `json:"time_context_enabled"`
	HookDetectionEnabled bool `json:"hook_detection_enabled"`

	Stats SessionStats `json:"stats"`

	// IsRemote is true for sessions merged in from a federation peer;
	// such sessions are never mutated locally.
	IsRemote bool `json:"is_remote,omitempty"`

	// BashCount and RunningChild are structural fields parsed from the
	// status bar line — not part of AgentStatus itself.
	BashCount    int  `json:"bash_count,omitempty"`
	RunningChild bool `json:"running_child,omitempty"`
}

// VisibilityFilter controls which sessions list_visible returns.
type VisibilityFilter struct {
	IncludeAsleep     bool
	IncludeTerminated bool
	IncludeDone       bool
}

// Matches reports whether a session passes the filter.
func (f VisibilityFilter) Matches(s *AgentSession) bool {
	if s.IsAsleep && !f.IncludeAsleep {
		return false
	}
	if s.Status == StatusTerminated && !f.IncludeTerminated {
		return false
	}
	if s.Status == StatusDone && !f.IncludeDone {
		return false
	}
	return true
}

// RemediationStats tracks the remediation agent's own lifecycle (part of
// MonitorState's aggregate counters).
type RemediationStats struct {
	SupervisorLaunches           int        `json:"supervisor_launches"`
	SupervisorClaudeStartedAt    *time.Time `json:"supervisor_claude_started_at,omitempty"`
	SupervisorClaudeTotalRunSecs float64    `json:"supervisor_claude_total_run_seconds"`
}

// MonitorState is the process-wide snapshot written atomically to the
// state document every tick.
type MonitorState struct {
	LoopCounter   int64     `json:"loop_counter"`
	TickInterval  float64   `json:"tick_interval_seconds"`
	StartedAt     time.Time `json:"started_at"`
	DaemonVersion string    `json:"daemon_version"`

	Sessions []SessionProjection `json:"sessions"`

	Remediation RemediationStats `json:"remediation"`
}

// SessionProjection is the read-only view of a session exposed on the
// wire (mirrors AgentSession plus its stats, flattened for the API).
type SessionProjection struct {
	AgentSession
}

// PeerState records the last-known reachability of one federation peer.
type PeerState struct {
	Name        string    `json:"name"`
	Reachable   bool      `json:"reachable"`
	LastError   string    `json:"last_error,omitempty"`
	LastPolledAt time.Time `json:"last_polled_at"`
}

// PricingConfig holds the per-million-token USD prices used by
// CostEstimate.
type PricingConfig struct {
	PriceInput       float64 `yaml:"price_input" json:"price_input"`
	PriceOutput      float64 `yaml:"price_output" json:"price_output"`
	PriceCacheWrite  float64 `yaml:"price_cache_write" json:"price_cache_write"`
	PriceCacheRead   float64 `yaml:"price_cache_read" json:"price_cache_read"`
}

// DefaultPricing returns the baseline per-million-token price vector.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		PriceInput:      15.00,
		PriceOutput:     75.00,
		PriceCacheWrite: 18.75,
		PriceCacheRead:  1.50,
	}
}

// PeerConfig is a federation peer entry.
type PeerConfig struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
}

// Config is Overcode's full, explicitly-threaded configuration value —
// loaded once at startup and passed down rather than read from
// package-level globals.
type Config struct {
	StateDir          string        `yaml:"state_dir"`
	MultiplexerGroup  string        `yaml:"multiplexer_group"`
	TickInterval      time.Duration `yaml:"-"`
	TickIntervalSecs  float64       `yaml:"tick_interval_seconds"`
	APIPort           int           `yaml:"api_port"`
	APIKey            string        `yaml:"api_key"`
	Pricing           PricingConfig `yaml:"pricing"`
	Peers             []PeerConfig  `yaml:"peers"`
	SupervisorMinGap  time.Duration `yaml:"-"`
	SupervisorMinGapSecs float64    `yaml:"supervisor_min_gap_seconds"`
	RetentionHours    int           `yaml:"retention_hours"`
	ActionPhrases     []string      `yaml:"action_phrases"`
	NoActionPhrases   []string      `yaml:"no_action_phrases"`
}
