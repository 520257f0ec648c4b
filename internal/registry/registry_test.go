package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/types"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir, "overcode", "localhost", multiplexer.NewFakeAdapter()), dir
}

func TestCreate_PersistsAndOpensWindow(t *testing.T) {
	reg, dir := newTestRegistry(t)

	session, err := reg.Create("agent-1", "/tmp/work", []string{"claude"}, CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.MultiplexerWindow == "" {
		t.Fatalf("expected a multiplexer window handle")
	}

	statePath := filepath.Join(dir, "overcode", "sessions.json")
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("expected state document to exist: %v", err)
	}
}

// Invariant 4: name collisions append the lowest n>=2.
func TestCreate_NameCollisionResolution(t *testing.T) {
	reg, _ := newTestRegistry(t)

	a, _ := reg.Create("agent", "/tmp", nil, CreateOptions{})
	b, _ := reg.Create("agent", "/tmp", nil, CreateOptions{})
	c, _ := reg.Create("agent", "/tmp", nil, CreateOptions{})

	if a.Name != "agent" {
		t.Fatalf("expected first name unchanged, got %q", a.Name)
	}
	if b.Name != "agent-2" {
		t.Fatalf("expected second name agent-2, got %q", b.Name)
	}
	if c.Name != "agent-3" {
		t.Fatalf("expected third name agent-3, got %q", c.Name)
	}
}

func TestCreate_ForbidRenameReturnsNameInUse(t *testing.T) {
	reg, _ := newTestRegistry(t)
	if _, err := reg.Create("agent", "/tmp", nil, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := reg.Create("agent", "/tmp", nil, CreateOptions{ForbidRename: true})
	if _, ok := err.(*ErrNameInUse); !ok {
		t.Fatalf("expected ErrNameInUse, got %v", err)
	}
}

func TestUpdateStatus_IdempotentAndAccumulates(t *testing.T) {
	reg, _ := newTestRegistry(t)
	session, _ := reg.Create("agent", "/tmp", nil, CreateOptions{})

	now := session.StartTime.Add(10 * time.Second)
	if err := reg.UpdateStatus(session.ID, types.StatusRunning, "working", now); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	updated := reg.Get(session.ID)
	if updated.Status != types.StatusRunning {
		t.Fatalf("expected running, got %s", updated.Status)
	}
	if updated.Stats.GreenSeconds <= 0 {
		t.Fatalf("expected green_seconds to accumulate, got %v", updated.Stats.GreenSeconds)
	}

	// Calling again with the same status and no elapsed time must not
	// double-count or error.
	if err := reg.UpdateStatus(session.ID, types.StatusRunning, "working", now); err != nil {
		t.Fatalf("UpdateStatus (repeat): %v", err)
	}
}

// Invariant 3: a terminated session's accumulators never change again.
func TestTerminate_FreezesAccumulators(t *testing.T) {
	reg, _ := newTestRegistry(t)
	session, _ := reg.Create("agent", "/tmp", nil, CreateOptions{})

	if err := reg.Terminate(session.ID, true); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	before := reg.Get(session.ID).Stats
	if err := reg.UpdateStatus(session.ID, types.StatusRunning, "x", time.Now()); err != nil {
		t.Fatalf("UpdateStatus after terminate: %v", err)
	}
	after := reg.Get(session.ID).Stats
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected frozen stats after termination, before=%+v after=%+v", before, after)
	}
}

func TestListVisible_HonorsFilter(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, _ := reg.Create("a", "/tmp", nil, CreateOptions{})
	b, _ := reg.Create("b", "/tmp", nil, CreateOptions{})

	if err := reg.SetSleep(a.ID, true); err != nil {
		t.Fatalf("SetSleep: %v", err)
	}
	if err := reg.Terminate(b.ID, false); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	visible := reg.ListVisible(types.VisibilityFilter{})
	if len(visible) != 0 {
		t.Fatalf("expected no sessions visible by default, got %d", len(visible))
	}

	visible = reg.ListVisible(types.VisibilityFilter{IncludeAsleep: true, IncludeTerminated: true})
	if len(visible) != 2 {
		t.Fatalf("expected 2 sessions with full filter, got %d", len(visible))
	}
}

func TestMergeRemote_ReplacesHostSubsetAtomically(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.MergeRemote("peer-a", []*types.AgentSession{
		{Name: "remote-1", Status: types.StatusRunning},
	})
	if err != nil {
		t.Fatalf("MergeRemote: %v", err)
	}

	all := reg.All()
	if len(all) != 1 || !all[0].IsRemote || all[0].ID != "remote:peer-a:remote-1" {
		t.Fatalf("unexpected merged state: %+v", all)
	}

	// A second merge from the same host replaces, not appends.
	err = reg.MergeRemote("peer-a", []*types.AgentSession{
		{Name: "remote-2", Status: types.StatusRunning},
	})
	if err != nil {
		t.Fatalf("MergeRemote (second): %v", err)
	}
	all = reg.All()
	if len(all) != 1 || all[0].Name != "remote-2" {
		t.Fatalf("expected host subset replaced, got %+v", all)
	}
}

func TestLoad_RoundTripsPersistedState(t *testing.T) {
	reg, dir := newTestRegistry(t)
	session, _ := reg.Create("agent", "/tmp", nil, CreateOptions{})

	reloaded := New(dir, "overcode", "localhost", multiplexer.NewFakeAdapter())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Get(session.ID)
	if got == nil || got.Name != "agent" {
		t.Fatalf("expected round-tripped session, got %+v", got)
	}
}
