package classifier

import (
	"testing"
	"time"

	"github.com/overcode/overcode/internal/types"
)

// E1 — permission prompt.
func TestClassify_PermissionPrompt(t *testing.T) {
	lines := []string{
		"  Bash(rm -rf /tmp/test)",
		"  Do you want to proceed?",
		"  ❯ 1. Yes",
		"    2. Yes, and don't ask again",
		"    3. No, and tell Claude what to do differently (esc)",
	}

	result := Classify(StrategyPolling, lines, nil, "", time.Time{}, time.Now())
	if result.Status != types.StatusWaitingApproval {
		t.Fatalf("expected waiting_approval, got %s", result.Status)
	}
	if result.ActivitySummary != "Do you want to proceed?" {
		t.Fatalf("expected activity %q, got %q", "Do you want to proceed?", result.ActivitySummary)
	}
}

// E2 — bare prompt after banner.
func TestClassify_BarePrompt(t *testing.T) {
	lines := []string{
		"Welcome to Claude Code",
		"────────────────────────",
		">",
	}

	result := Classify(StrategyPolling, lines, nil, "", time.Time{}, time.Now())
	if result.Status != types.StatusWaitingUser {
		t.Fatalf("expected waiting_user, got %s", result.Status)
	}
	if result.ActivitySummary != "" {
		t.Fatalf("expected empty activity summary, got %q", result.ActivitySummary)
	}
}

func TestClassify_ActiveIndicator(t *testing.T) {
	lines := []string{
		"  Bash(go test ./...)",
		"✽ thinking…",
	}
	result := Classify(StrategyPolling, lines, nil, "", time.Time{}, time.Now())
	if result.Status != types.StatusRunning {
		t.Fatalf("expected running, got %s", result.Status)
	}
}

func TestClassify_ChildCommandToken(t *testing.T) {
	lines := []string{"Reading (internal/types/types.go)"}
	result := Classify(StrategyPolling, lines, nil, "", time.Time{}, time.Now())
	if result.Status != types.StatusRunning {
		t.Fatalf("expected running, got %s", result.Status)
	}
}

func TestClassify_SlashMenu(t *testing.T) {
	lines := []string{
		"  /help        Show help",
		"  /clear       Clear conversation",
		"  /compact     Compact history",
	}
	result := Classify(StrategyPolling, lines, nil, "", time.Time{}, time.Now())
	if result.Status != types.StatusWaitingUser {
		t.Fatalf("expected waiting_user, got %s", result.Status)
	}
}

func TestClassify_StalenessFallback(t *testing.T) {
	lines := []string{"nothing recognizable here"}
	now := time.Now()

	// Within staleness horizon: repeats previous status.
	result := Classify(StrategyPolling, lines, nil, types.StatusRunning, now.Add(-5*time.Second), now)
	if result.Status != types.StatusRunning {
		t.Fatalf("expected stale-carried running, got %s", result.Status)
	}

	// Beyond staleness horizon: falls back to waiting_user.
	result = Classify(StrategyPolling, lines, nil, types.StatusRunning, now.Add(-20*time.Second), now)
	if result.Status != types.StatusWaitingUser {
		t.Fatalf("expected waiting_user after staleness horizon, got %s", result.Status)
	}
}

func TestClassify_HookStrategy(t *testing.T) {
	cases := map[string]types.AgentStatus{
		"Stop":              types.StatusWaitingUser,
		"PermissionRequest": types.StatusWaitingApproval,
		"SessionEnd":        types.StatusTerminated,
		"UserPromptSubmit":  types.StatusRunning,
		"PostToolUse":       types.StatusRunning,
	}
	for event, want := range cases {
		result := Classify(StrategyHook, nil, &HookState{Event: event}, "", time.Time{}, time.Now())
		if result.Status != want {
			t.Fatalf("event %s: expected %s, got %s", event, want, result.Status)
		}
	}
}

func TestClassify_HookStrategyFallsBackWithoutState(t *testing.T) {
	lines := []string{">"}
	result := Classify(StrategyHook, lines, nil, "", time.Time{}, time.Now())
	if result.Status != types.StatusWaitingUser {
		t.Fatalf("expected polling fallback waiting_user, got %s", result.Status)
	}
}

// Property 9: classification is idempotent on unchanged pane text.
func TestClassify_Idempotent(t *testing.T) {
	lines := []string{
		"  Bash(go build ./...)",
		"✽ working…",
	}
	now := time.Now()
	first := Classify(StrategyPolling, lines, nil, types.StatusWaitingUser, now.Add(-1*time.Second), now)
	second := Classify(StrategyPolling, lines, nil, first.Status, now, now)
	if first.Status != second.Status || first.ActivitySummary != second.ActivitySummary {
		t.Fatalf("expected idempotent classification, got %+v then %+v", first, second)
	}
}

func TestExtractStatusBar(t *testing.T) {
	lines := []string{"⏵⏵ 3 bashes running"}
	result := Classify(StrategyPolling, lines, nil, "", time.Time{}, time.Now())
	if result.BashCount != 3 {
		t.Fatalf("expected bash count 3, got %d", result.BashCount)
	}
}

func TestTruncateGraphemes(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	got := truncateGraphemes(long, 80)
	if len(got) != 80 {
		t.Fatalf("expected truncated length 80, got %d", len(got))
	}
}
