package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/types"
)

type fakeAttentionSink struct {
	calls [][]string
}

func (f *fakeAttentionSink) NotifyAttention(names []string) {
	f.calls = append(f.calls, names)
}

type fakeSupervisorSignal struct {
	signalled int
}

func (f *fakeSupervisorSignal) Signal() { f.signalled++ }

type fakeHistoryWriter struct {
	rows int
}

func (f *fakeHistoryWriter) Append(time.Time, string, types.AgentStatus, string) error {
	f.rows++
	return nil
}

func TestLoop_TickClassifiesAndPersists(t *testing.T) {
	dir := t.TempDir()
	adapter := multiplexer.NewFakeAdapter()
	reg := registry.New(dir, "overcode", "localhost", adapter)

	session, err := reg.Create("agent-1", "/tmp", nil, registry.CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	adapter.SetPaneText("overcode", session.MultiplexerWindow, []string{"✽ thinking…"})

	attention := &fakeAttentionSink{}
	supervisorSignal := &fakeSupervisorSignal{}
	history := &fakeHistoryWriter{}

	loop := NewLoop(reg, adapter, "overcode", dir)
	loop.Attention = attention
	loop.Supervisor = supervisorSignal
	loop.History = history

	loop.tick(context.Background())

	updated := reg.Get(session.ID)
	if updated.Status != types.StatusRunning {
		t.Fatalf("expected running after classify, got %s", updated.Status)
	}
	if supervisorSignal.signalled != 1 {
		t.Fatalf("expected supervisor signalled once, got %d", supervisorSignal.signalled)
	}
	if history.rows != 1 {
		t.Fatalf("expected 1 history row, got %d", history.rows)
	}
}

func TestLoop_AttentionBellCoalescedOncePerTransition(t *testing.T) {
	dir := t.TempDir()
	adapter := multiplexer.NewFakeAdapter()
	reg := registry.New(dir, "overcode", "localhost", adapter)

	session, _ := reg.Create("agent-1", "/tmp", nil, registry.CreateOptions{})
	adapter.SetPaneText("overcode", session.MultiplexerWindow, []string{">"})

	attention := &fakeAttentionSink{}
	loop := NewLoop(reg, adapter, "overcode", dir)
	loop.Attention = attention

	loop.tick(context.Background())
	loop.tick(context.Background())
	loop.tick(context.Background())

	if len(attention.calls) != 1 {
		t.Fatalf("expected exactly one attention call across repeated waiting_user ticks, got %d", len(attention.calls))
	}
	if len(attention.calls[0]) != 1 || attention.calls[0][0] != "agent-1" {
		t.Fatalf("expected attention for agent-1, got %+v", attention.calls)
	}
}

func TestLoop_RunRespectsCancellation(t *testing.T) {
	dir := t.TempDir()
	adapter := multiplexer.NewFakeAdapter()
	reg := registry.New(dir, "overcode", "localhost", adapter)
	reg.Create("agent-1", "/tmp", nil, registry.CreateOptions{})

	loop := NewLoop(reg, adapter, "overcode", dir)
	loop.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(ShutdownGrace + time.Second):
		t.Fatalf("Run did not return after cancellation within grace period")
	}
}

func TestSnapshot_ReflectsAllSessions(t *testing.T) {
	dir := t.TempDir()
	adapter := multiplexer.NewFakeAdapter()
	reg := registry.New(dir, "overcode", "localhost", adapter)
	reg.Create("agent-1", "/tmp", nil, registry.CreateOptions{})
	reg.Create("agent-2", "/tmp", nil, registry.CreateOptions{})

	loop := NewLoop(reg, adapter, "overcode", dir)
	loop.tick(context.Background())

	snap := loop.Snapshot()
	if len(snap.Sessions) != 2 {
		t.Fatalf("expected 2 sessions in snapshot, got %d", len(snap.Sessions))
	}
	if snap.LoopCounter != 1 {
		t.Fatalf("expected loop counter 1, got %d", snap.LoopCounter)
	}
}
