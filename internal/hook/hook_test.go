package hook

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/overcode/overcode/internal/presence"
	"github.com/overcode/overcode/internal/types"
)

func writeMonitorState(t *testing.T, stateDir, group string, state types.MonitorState) {
	t.Helper()
	dir := filepath.Join(stateDir, group)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(MonitorStatePath(stateDir, group), data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRun_BudgetExceededBlocksWithExitCode2(t *testing.T) {
	dir := t.TempDir()
	budget := 5.00
	writeMonitorState(t, dir, "agents", types.MonitorState{
		Sessions: []types.SessionProjection{
			{AgentSession: types.AgentSession{
				Name:           "acme",
				BudgetExceeded: true,
				CostBudgetUSD:  &budget,
				Stats:          types.SessionStats{EstimatedCostUSD: 5.42},
			}},
		},
	})

	stdin := strings.NewReader(`{"hook_event_name":"UserPromptSubmit"}`)
	var stdout, stderr bytes.Buffer

	code := Run(stdin, &stderr, &stdout, Env{SessionName: "acme", MultiplexerGroup: "agents", StateDir: dir}, presence.Signal{}, time.Now())

	if code != BlockExitCode {
		t.Fatalf("expected exit code %d, got %d", BlockExitCode, code)
	}
	if !strings.Contains(stderr.String(), "$5.42") {
		t.Fatalf("expected stderr to contain $5.42, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "$5.00") {
		t.Fatalf("expected stderr to contain $5.00, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Budget") {
		t.Fatalf("expected stderr to contain Budget, got %q", stderr.String())
	}
}

func TestRun_UserPromptSubmitPrintsTimeContext(t *testing.T) {
	dir := t.TempDir()
	writeMonitorState(t, dir, "agents", types.MonitorState{
		Sessions: []types.SessionProjection{
			{AgentSession: types.AgentSession{
				Name:      "acme",
				StartTime: time.Now().Add(-90 * time.Minute),
			}},
		},
	})

	stdin := strings.NewReader(`{"hook_event_name":"UserPromptSubmit"}`)
	var stdout, stderr bytes.Buffer

	code := Run(stdin, &stderr, &stdout, Env{SessionName: "acme", MultiplexerGroup: "agents", StateDir: dir}, presence.Signal{}, time.Now())

	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Clock:") || !strings.Contains(stdout.String(), "Uptime:") {
		t.Fatalf("expected time context string, got %q", stdout.String())
	}
}

func TestRun_StopWritesHookState(t *testing.T) {
	dir := t.TempDir()
	stdin := strings.NewReader(`{"hook_event_name":"Stop"}`)
	var stdout, stderr bytes.Buffer

	code := Run(stdin, &stderr, &stdout, Env{SessionName: "acme", MultiplexerGroup: "agents", StateDir: dir}, presence.Signal{}, time.Now())
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	data, err := os.ReadFile(HookStatePath(dir, "agents", "acme"))
	if err != nil {
		t.Fatalf("expected hook state file, got error: %v", err)
	}
	var record StateRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if record.Event != EventStop {
		t.Fatalf("expected Stop event, got %s", record.Event)
	}
}

func TestRun_UnknownEventSilentZeroExit(t *testing.T) {
	dir := t.TempDir()
	stdin := strings.NewReader(`{"hook_event_name":"SomethingElse"}`)
	var stdout, stderr bytes.Buffer

	code := Run(stdin, &stderr, &stdout, Env{SessionName: "acme", MultiplexerGroup: "agents", StateDir: dir}, presence.Signal{}, time.Now())
	if code != 0 {
		t.Fatalf("expected exit 0 for unknown event, got %d", code)
	}
	if _, err := os.Stat(HookStatePath(dir, "agents", "acme")); err == nil {
		t.Fatalf("expected no hook state file for unknown event")
	}
}

func TestRun_MissingEnvSilentZeroExit(t *testing.T) {
	stdin := strings.NewReader(`{"hook_event_name":"Stop"}`)
	var stdout, stderr bytes.Buffer

	code := Run(stdin, &stderr, &stdout, Env{}, presence.Signal{}, time.Now())
	if code != 0 {
		t.Fatalf("expected exit 0 for missing env, got %d", code)
	}
}

func TestRun_MalformedInputSilentZeroExit(t *testing.T) {
	dir := t.TempDir()
	stdin := strings.NewReader(`not json`)
	var stdout, stderr bytes.Buffer

	code := Run(stdin, &stderr, &stdout, Env{SessionName: "acme", MultiplexerGroup: "agents", StateDir: dir}, presence.Signal{}, time.Now())
	if code != 0 {
		t.Fatalf("expected exit 0 for malformed input, got %d", code)
	}
}
