// Package registry owns the live map of tracked agent sessions and its
// persisted JSON state document. Reads may occur without
// locking against the document itself (readers tolerate atomic-replace
// semantics); writes to the in-memory map and to disk both serialize
// through the Registry's own mutex, which plays the role of the single
// owner task the design calls for.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overcode/overcode/internal/accumulator"
	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/types"
)

// ErrNameInUse is returned by Create when the caller forbade renaming and
// the requested name collides with an existing non-terminated local
// session.
type ErrNameInUse struct {
	Name string
}

func (e *ErrNameInUse) Error() string {
	return "registry: name already in use: " + e.Name
}

// ErrNotFound is returned when an operation names a session ID the
// registry has no record of.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return "registry: unknown session: " + e.ID
}

// ErrRemoteReadOnly is returned by any mutating operation (including
// SendText/SendKey) attempted against a session merged in from a
// federation peer: remote sessions are read-only local mirrors.
type ErrRemoteReadOnly struct {
	ID string
}

func (e *ErrRemoteReadOnly) Error() string {
	return "registry: session is remote and read-only: " + e.ID
}

// CreateOptions controls session-creation behavior.
type CreateOptions struct {
	Repo           string
	Branch         string
	Permissiveness types.Permissiveness
	StandingOrders string
	AgentValue     int
	ForbidRename   bool
}

// Registry holds the live session map and persists it to a single JSON
// state document per multiplexer group.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*types.AgentSession
	statePath string
	adapter  multiplexer.Adapter
	group    string
	host     string
}

// New constructs a Registry persisting to <stateDir>/<group>/sessions.json.
func New(stateDir, group, host string, adapter multiplexer.Adapter) *Registry {
	return &Registry{
		sessions:  make(map[string]*types.AgentSession),
		statePath: filepath.Join(stateDir, group, "sessions.json"),
		adapter:   adapter,
		group:     group,
		host:      host,
	}
}

// persistedState is the on-disk shape of the state document: a stable
// array, sorted by id, so repeated writes of unchanged state produce
// byte-identical output.
type persistedState struct {
	Sessions []*types.AgentSession `json:"sessions"`
}

// Load reads the state document if present; a missing file is not an
// error (first run).
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: failed to read state document: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("registry: failed to parse state document: %w", err)
	}

	for _, s := range state.Sessions {
		r.sessions[s.ID] = s
	}
	return nil
}

// persistLocked rewrites the state document atomically: write to a
// sibling temp file, then rename over the target. Caller must hold
// r.mu.
func (r *Registry) persistLocked() error {
	local := make([]*types.AgentSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.IsRemote {
			local = append(local, s)
		}
	}
	sort.Slice(local, func(i, j int) bool { return local[i].ID < local[j].ID })

	remote := make([]*types.AgentSession, 0)
	for _, s := range r.sessions {
		if s.IsRemote {
			remote = append(remote, s)
		}
	}
	sort.Slice(remote, func(i, j int) bool { return remote[i].ID < remote[j].ID })

	data, err := json.MarshalIndent(persistedState{Sessions: append(local, remote...)}, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: failed to marshal state document: %w", err)
	}

	dir := filepath.Dir(r.statePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("registry: failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("registry: failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("registry: failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, r.statePath); err != nil {
		return fmt.Errorf("registry: failed to rename temp state file into place: %w", err)
	}
	return nil
}

// resolveNameLocked applies invariant 4: appends the lowest n>=2 making
// name unique among non-terminated local sessions.
func (r *Registry) resolveNameLocked(name string) string {
	if !r.nameTakenLocked(name) {
		return name
	}
	for n := 2; ; n++ {
		candidate := name + "-" + strconv.Itoa(n)
		if !r.nameTakenLocked(candidate) {
			return candidate
		}
	}
}

func (r *Registry) nameTakenLocked(name string) bool {
	for _, s := range r.sessions {
		if s.IsRemote || s.Status == types.StatusTerminated {
			continue
		}
		if s.Name == name {
			return true
		}
	}
	return false
}

// Create allocates a session, opens its multiplexer window, and
// persists. If opts.ForbidRename is set and the name collides, returns
// *ErrNameInUse instead of renaming.
func (r *Registry) Create(name, workingDir string, command []string, opts CreateOptions) (*types.AgentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if opts.ForbidRename && r.nameTakenLocked(name) {
		return nil, &ErrNameInUse{Name: name}
	}
	resolved := r.resolveNameLocked(name)

	handle, err := r.adapter.NewWindow(context.Background(), r.group, resolved, workingDir)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open multiplexer window: %w", err)
	}

	now := time.Now()
	permissiveness := opts.Permissiveness
	if permissiveness == "" {
		permissiveness = types.PermissivenessNormal
	}

	session := &types.AgentSession{
		ID:                uuid.NewString(),
		Name:              resolved,
		Host:              r.host,
		MultiplexerWindow: handle,
		WorkingDirectory:  workingDir,
		Repo:              opts.Repo,
		Branch:            opts.Branch,
		Command:           command,
		StartTime:         now,
		Status:            types.StatusNoInstructions,
		StandingOrders:    opts.StandingOrders,
		Permissiveness:    permissiveness,
		AgentValue:        opts.AgentValue,
		TimeContextEnabled: true,
		Stats: types.SessionStats{
			CurrentState:         types.StatusNoInstructions,
			StateSince:           now,
			LastAccumulationTime: now,
		},
	}

	r.sessions[session.ID] = session
	if err := r.persistLocked(); err != nil {
		return nil, err
	}
	return session, nil
}

// applyStatusLocked is UpdateStatus's logic without the persist step, so
// callers can batch several sessions behind a single state-document
// write. Caller must hold r.mu.
func (r *Registry) applyStatusLocked(id string, status types.AgentStatus, activitySummary string, now time.Time) error {
	s, ok := r.sessions[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if s.IsRemote {
		return fmt.Errorf("registry: cannot update remote session %q locally", id)
	}
	if s.Status == types.StatusTerminated {
		return nil // invariant 3: terminated accumulators never change
	}

	prevStatus := s.Stats.CurrentState
	elapsed := now.Sub(s.Stats.LastAccumulationTime).Seconds()

	result := accumulator.UpdateTimes(status, prevStatus, elapsed, accumulator.Buckets{
		Green:    s.Stats.GreenSeconds,
		NonGreen: s.Stats.NonGreenSeconds,
		Sleep:    s.Stats.SleepSeconds,
	}, s.StartTime, now)

	s.Stats.GreenSeconds = result.Green
	s.Stats.NonGreenSeconds = result.NonGreen
	s.Stats.SleepSeconds = result.Sleep
	s.Stats.LastAccumulationTime = now

	if status != prevStatus {
		s.Stats.StateSince = now
	}
	s.Stats.CurrentState = status
	s.Stats.ActivitySummary = activitySummary
	s.Status = status

	if s.CostBudgetUSD != nil && s.Stats.EstimatedCostUSD > *s.CostBudgetUSD {
		s.BudgetExceeded = true
	} else {
		s.BudgetExceeded = false
	}
	return nil
}

// UpdateStatus is idempotent: records transition timestamps and
// delegates bucket accounting to the accumulator package.
func (r *Registry) UpdateStatus(id string, status types.AgentStatus, activitySummary string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.applyStatusLocked(id, status, activitySummary, now); err != nil {
		return err
	}
	return r.persistLocked()
}

// StatusUpdate is one session's worth of input to ApplyStatusUpdates.
type StatusUpdate struct {
	ID              string
	Status          types.AgentStatus
	ActivitySummary string
}

// ApplyStatusUpdates applies every update under a single lock acquisition
// and persists exactly once, matching the Monitor Loop's per-tick
// serialize-the-full-snapshot-atomically step. An error on one update
// does not prevent the others from applying; the first per-update error
// is returned (after the persist succeeds), later ones are not reported.
func (r *Registry) ApplyStatusUpdates(updates []StatusUpdate, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, u := range updates {
		if err := r.applyStatusLocked(u.ID, u.Status, u.ActivitySummary, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.persistLocked(); err != nil {
		return err
	}
	return firstErr
}

// Terminate sets status=terminated, records terminated_at, and
// optionally asks the multiplexer to kill the window.
func (r *Registry) Terminate(id string, cascade bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if s.IsRemote {
		return &ErrRemoteReadOnly{ID: id}
	}
	if s.Status == types.StatusTerminated {
		return nil
	}

	now := time.Now()
	s.Status = types.StatusTerminated
	s.TerminatedAt = &now
	s.Stats.CurrentState = types.StatusTerminated

	if cascade {
		if err := r.adapter.KillWindow(context.Background(), r.group, s.MultiplexerWindow); err != nil {
			if _, notFound := err.(*multiplexer.ErrNotFound); !notFound {
				return fmt.Errorf("registry: failed to kill window for %q: %w", id, err)
			}
		}
	}

	return r.persistLocked()
}

// SetStandingOrders, SetBudget, SetValue, SetSleep and Annotate are
// single-field mutators; each persists on success.
func (r *Registry) SetStandingOrders(id, textOrPreset string) error {
	return r.mutate(id, func(s *types.AgentSession) { s.StandingOrders = textOrPreset })
}

func (r *Registry) SetBudget(id string, usd float64) error {
	return r.mutate(id, func(s *types.AgentSession) { s.CostBudgetUSD = &usd })
}

func (r *Registry) SetValue(id string, value int) error {
	return r.mutate(id, func(s *types.AgentSession) { s.AgentValue = value })
}

func (r *Registry) SetSleep(id string, asleep bool) error {
	return r.mutate(id, func(s *types.AgentSession) { s.IsAsleep = asleep })
}

func (r *Registry) Annotate(id, text string) error {
	return r.mutate(id, func(s *types.AgentSession) { s.Annotation = text })
}

// SetHeartbeat installs or clears a session's heartbeat configuration.
func (r *Registry) SetHeartbeat(id string, enabled bool, intervalSeconds int, instruction string) error {
	return r.mutate(id, func(s *types.AgentSession) {
		if !enabled {
			s.Heartbeat = nil
			return
		}
		if s.Heartbeat == nil {
			s.Heartbeat = &types.Heartbeat{}
		}
		s.Heartbeat.IntervalSeconds = intervalSeconds
		s.Heartbeat.Instruction = instruction
		s.Heartbeat.Paused = false
	})
}

// PauseHeartbeat and ResumeHeartbeat toggle Heartbeat.Paused without
// losing the configured schedule.
func (r *Registry) PauseHeartbeat(id string) error {
	return r.mutate(id, func(s *types.AgentSession) {
		if s.Heartbeat != nil {
			s.Heartbeat.Paused = true
		}
	})
}

func (r *Registry) ResumeHeartbeat(id string) error {
	return r.mutate(id, func(s *types.AgentSession) {
		if s.Heartbeat != nil {
			s.Heartbeat.Paused = false
		}
	})
}

// SetTimeContextEnabled toggles the UserPromptSubmit time-context
// output.
func (r *Registry) SetTimeContextEnabled(id string, enabled bool) error {
	return r.mutate(id, func(s *types.AgentSession) { s.TimeContextEnabled = enabled })
}

// SetHookDetectionEnabled chooses the hook vs. polling classifier
// strategy for a session.
func (r *Registry) SetHookDetectionEnabled(id string, enabled bool) error {
	return r.mutate(id, func(s *types.AgentSession) { s.HookDetectionEnabled = enabled })
}

// IncrementSteerCount bumps a session's steer_count by one, called when
// the remediation agent is tracked steering it.
func (r *Registry) IncrementSteerCount(id string) error {
	return r.mutate(id, func(s *types.AgentSession) { s.Stats.SteerCount++ })
}

// Restart terminates a session and re-creates it under the same name
// with its stored command and working directory.
func (r *Registry) Restart(id string) (*types.AgentSession, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, &ErrNotFound{ID: id}
	}
	if s.IsRemote {
		r.mu.Unlock()
		return nil, &ErrRemoteReadOnly{ID: id}
	}
	name, workingDir, command := s.Name, s.WorkingDirectory, s.Command
	opts := CreateOptions{
		Repo:           s.Repo,
		Branch:         s.Branch,
		Permissiveness: s.Permissiveness,
		StandingOrders: s.StandingOrders,
		AgentValue:     s.AgentValue,
	}
	r.mu.Unlock()

	if err := r.Terminate(id, true); err != nil {
		return nil, err
	}
	return r.Create(name, workingDir, command, opts)
}

// Cleanup removes terminated (and, if includeDone, done) sessions from
// the in-memory map and persists once.
func (r *Registry) Cleanup(includeDone bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.IsRemote {
			continue
		}
		if s.Status == types.StatusTerminated || (includeDone && s.Status == types.StatusDone) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, r.persistLocked()
}

func (r *Registry) mutate(id string, fn func(*types.AgentSession)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	if s.IsRemote {
		return &ErrRemoteReadOnly{ID: id}
	}
	fn(s)
	return r.persistLocked()
}

// SendText delivers literal text to a session's pane via the
// multiplexer adapter, optionally followed by Enter. Remote sessions
// are read-only and never forwarded to an adapter.
func (r *Registry) SendText(id, text string, pressEnter bool) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return &ErrNotFound{ID: id}
	}
	if s.IsRemote {
		r.mu.Unlock()
		return &ErrRemoteReadOnly{ID: id}
	}
	handle := s.MultiplexerWindow
	r.mu.Unlock()

	return r.adapter.SendText(context.Background(), r.group, handle, text, pressEnter)
}

// SendKey injects a single named key into a session's pane.
func (r *Registry) SendKey(id string, key multiplexer.NamedKey) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return &ErrNotFound{ID: id}
	}
	if s.IsRemote {
		r.mu.Unlock()
		return &ErrRemoteReadOnly{ID: id}
	}
	handle := s.MultiplexerWindow
	r.mu.Unlock()

	return r.adapter.SendKey(context.Background(), r.group, handle, key)
}

// TransportAll moves every local session's window into the registry's
// current group, e.g. after the operator reattaches under a different
// multiplexer group name.
func (r *Registry) TransportAll(targetGroup string) (int, error) {
	r.mu.Lock()
	handles := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.IsRemote && s.Status != types.StatusTerminated {
			handles = append(handles, s.MultiplexerWindow)
		}
	}
	group := r.group
	r.mu.Unlock()

	moved := 0
	for _, handle := range handles {
		if err := r.adapter.MoveWindow(context.Background(), group, handle, targetGroup); err != nil {
			return moved, fmt.Errorf("registry: failed to move window %s to %s: %w", handle, targetGroup, err)
		}
		moved++
	}
	return moved, nil
}

// ListVisible returns sessions honoring the visibility filter, sorted by
// id for stable output.
func (r *Registry) ListVisible(filter types.VisibilityFilter) []*types.AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*types.AgentSession
	for _, s := range r.sessions {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a session by id, or nil.
func (r *Registry) Get(id string) *types.AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// GetByName returns the first non-terminated local session with the
// given name, or nil.
func (r *Registry) GetByName(name string) *types.AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if !s.IsRemote && s.Status != types.StatusTerminated && s.Name == name {
			return s
		}
	}
	return nil
}

// All returns every session, local and remote, unfiltered. Used by the
// monitor loop to build the MonitorState snapshot.
func (r *Registry) All() []*types.AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.AgentSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MergeRemote atomically replaces the remote subset belonging to one
// federation host with a freshly polled snapshot.
func (r *Registry) MergeRemote(host string, snapshot []*types.AgentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if s.IsRemote && s.Host == host {
			delete(r.sessions, id)
		}
	}
	for _, s := range snapshot {
		s.IsRemote = true
		s.ID = "remote:" + host + ":" + s.Name
		r.sessions[s.ID] = s
	}
	return r.persistLocked()
}
