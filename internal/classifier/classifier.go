// Package classifier implements the pattern-based mapping from captured
// terminal pane text to an AgentStatus and activity summary.
// Every exported function here is pure and total.
package classifier

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/overcode/overcode/internal/types"
)

// DefaultMaxLines is the default number of trailing pane lines scanned.
const DefaultMaxLines = 50

// Strategy selects which classification approach a session uses.
type Strategy string

const (
	StrategyPolling Strategy = "polling"
	StrategyHook    Strategy = "hook"
)

// StalenessHorizon bounds how long a polling classification may repeat
// the previous status before falling back to waiting_user (rule 6).
const StalenessHorizon = 10 * time.Second

var (
	proceedRe      = regexp.MustCompile(`(?i)do you want to proceed\?`)
	confirmTokenRe = regexp.MustCompile(`^\s*(\[y/n\]|\(y/n\)|press enter to confirm)\s*$`)
	barePromptRe   = regexp.MustCompile(`^\s*[>›]\s*$`)
	slashMenuRe    = regexp.MustCompile(`^\s{2}/\S+\s+\S`)
	statusBarRe    = regexp.MustCompile(`^\s*⏵⏵`)
	bashCountRe    = regexp.MustCompile(`(\d+)\s+bashes`)

	activeIndicators = []string{"thinking", "working", "processing", "✽"}
	childTokens      = []string{"Reading", "Writing", "Editing", "Searching", "Bash", "Task"}

	activityPrefixes = []string{">", "›", "-", "•"}
)

// HookState is the authoritative per-session hook marker written by the
// hook receiver; when present it drives the hook strategy.
type HookState struct {
	Event     string
	ToolName  string
	Timestamp time.Time
}

// Result is the output of one classification pass.
type Result struct {
	Status          types.AgentStatus
	ActivitySummary string
	BashCount       int
	RunningChild    bool
}

// Classify maps captured pane text (and, for the hook strategy, the
// session's hook state) to a status and activity summary. prevStatus and
// prevStatusAt support rule 6's staleness cap for the polling strategy.
func Classify(
	strategy Strategy,
	paneLines []string,
	hookState *HookState,
	prevStatus types.AgentStatus,
	prevStatusAt time.Time,
	now time.Time,
) Result {
	var result Result
	var matchedLine string
	var matched bool

	if strategy == StrategyHook && hookState != nil {
		result.Status = classifyHook(*hookState)
	} else {
		result.Status, matchedLine, matched = classifyPolling(paneLines, prevStatus, prevStatusAt, now)
	}

	if matched {
		result.ActivitySummary = summarize(matchedLine)
	} else {
		result.ActivitySummary = lastActivitySummary(paneLines)
	}
	result.BashCount, result.RunningChild = extractStatusBar(paneLines)
	return result
}

// classifyHook maps a hook event name to a status, per the event-to-status table.
func classifyHook(state HookState) types.AgentStatus {
	switch state.Event {
	case "Stop":
		return types.StatusWaitingUser
	case "PermissionRequest":
		return types.StatusWaitingApproval
	case "SessionEnd":
		return types.StatusTerminated
	case "UserPromptSubmit", "PostToolUse":
		return types.StatusRunning
	default:
		return types.StatusWaitingUser
	}
}

// classifyPolling scans the last N pane lines top-to-bottom against the
// precedence table below; first match wins. It returns the status,
// the specific line that triggered the match (if any), and whether a
// rule matched a specific line (false for the rule-5 slash menu and the
// rule-6 fallback, whose activity summary instead falls back to the
// pane's last non-empty line).
func classifyPolling(lines []string, prevStatus types.AgentStatus, prevStatusAt, now time.Time) (types.AgentStatus, string, bool) {
	if len(lines) > DefaultMaxLines {
		lines = lines[len(lines)-DefaultMaxLines:]
	}

	if line, ok := approvalMenuLine(lines); ok {
		return types.StatusWaitingApproval, line, true
	}
	if line, ok := confirmationTokenLine(lines); ok {
		return types.StatusWaitingApproval, line, true
	}
	if line, ok := barePromptLine(lines); ok {
		return types.StatusWaitingUser, line, true
	}
	if line, ok := activeIndicatorLine(lines); ok {
		return types.StatusRunning, line, true
	}
	if hasSlashMenu(lines) {
		return types.StatusWaitingUser, "", false
	}

	// Rule 6: fall back to previous status, capped at the staleness
	// horizon, then waiting_user.
	if prevStatus != "" && now.Sub(prevStatusAt) <= StalenessHorizon {
		return prevStatus, "", false
	}
	return types.StatusWaitingUser, "", false
}

// approvalMenuLine looks for the "Do you want to proceed?" header
// followed by a numbered-choice block (precedence 1).
func approvalMenuLine(lines []string) (string, bool) {
	for i, line := range lines {
		if !proceedRe.MatchString(line) {
			continue
		}
		for j := i + 1; j < len(lines) && j < i+6; j++ {
			if isNumberedChoice(lines[j]) {
				return line, true
			}
		}
	}
	return "", false
}

var numberedChoiceRe = regexp.MustCompile(`^\s*(❯\s*)?\d+\.\s`)

func isNumberedChoice(line string) bool {
	return numberedChoiceRe.MatchString(line)
}

// confirmationTokenLine looks for a bare short confirmation token
// (precedence 2).
func confirmationTokenLine(lines []string) (string, bool) {
	for _, line := range lines {
		if confirmTokenRe.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

// barePromptLine looks for a line whose only non-whitespace content is
// '>' or '›' (precedence 3).
func barePromptLine(lines []string) (string, bool) {
	for _, line := range lines {
		if barePromptRe.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

// activeIndicatorLine looks for an active-indicator token, or a child
// command token followed by '(' (precedence 4).
func activeIndicatorLine(lines []string) (string, bool) {
	for _, line := range lines {
		if lineHasActiveIndicator(line) {
			return line, true
		}
	}
	return "", false
}

func lineHasActiveIndicator(line string) bool {
	lower := strings.ToLower(line)
	for _, tok := range activeIndicators {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	for _, tok := range childTokens {
		idx := strings.Index(line, tok)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(line[idx+len(tok):])
		if strings.HasPrefix(rest, "(") {
			return true
		}
	}
	return false
}

// hasActiveIndicator reports whether any line carries an active
// indicator; used by the status-bar extraction helper below.
func hasActiveIndicator(lines []string) bool {
	_, ok := activeIndicatorLine(lines)
	return ok
}

// hasSlashMenu looks for at least 3 lines matching a slash-command menu
// entry (precedence 5).
func hasSlashMenu(lines []string) bool {
	count := 0
	for _, line := range lines {
		if slashMenuRe.MatchString(line) {
			count++
			if count >= 3 {
				return true
			}
		}
	}
	return false
}

// summarize strips common leading markers from a single matched line and
// truncates it to 80 graphemes.
func summarize(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range activityPrefixes {
		line = strings.TrimPrefix(line, prefix)
	}
	line = strings.TrimSpace(line)
	return truncateGraphemes(line, 80)
}

// lastActivitySummary returns the last non-empty classifier line, with
// common leading markers stripped and truncated to 80 graphemes. Used
// when no precedence rule produced a specific matched line (rules 5/6).
func lastActivitySummary(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return summarize(line)
	}
	return ""
}

// truncateGraphemes truncates s to at most n runes (an adequate
// approximation of grapheme clusters for the ASCII/Latin terminal output
// this classifier processes).
func truncateGraphemes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// extractStatusBar parses the "N bashes" background subprocess count and
// a binary marker for running child commands from the status bar line
// (leading "⏵⏵").
func extractStatusBar(lines []string) (bashCount int, runningChild bool) {
	for _, line := range lines {
		if !statusBarRe.MatchString(line) {
			continue
		}
		if m := bashCountRe.FindStringSubmatch(line); m != nil {
			var n int
			for _, c := range m[1] {
				n = n*10 + int(c-'0')
			}
			bashCount = n
		}
		runningChild = hasActiveIndicator([]string{line})
	}
	return bashCount, runningChild
}
