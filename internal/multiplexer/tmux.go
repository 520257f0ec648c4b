package multiplexer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// TmuxAdapter drives a real tmux server via its CLI, with the same
// rate-limiting discipline the classic WezTerm Ops type applies: a
// single mutex serializes pane operations, and a minimum interval is
// enforced between them to avoid hammering the multiplexer server.
type TmuxAdapter struct {
	mu             sync.Mutex
	lastOp         time.Time
	minOpInterval  time.Duration
	commandTimeout time.Duration
}

// NewTmuxAdapter constructs a TmuxAdapter with the package defaults.
func NewTmuxAdapter() *TmuxAdapter {
	return &TmuxAdapter{
		minOpInterval:  MinOpInterval,
		commandTimeout: DefaultCommandTimeout,
	}
}

func (t *TmuxAdapter) waitForInterval() {
	elapsed := time.Since(t.lastOp)
	if elapsed < t.minOpInterval {
		time.Sleep(t.minOpInterval - elapsed)
	}
	t.lastOp = time.Now()
}

func (t *TmuxAdapter) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", args...)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("multiplexer: tmux command timed out after %v: %s", t.commandTimeout, strings.Join(args, " "))
	}
	return output, err
}

// windowTarget builds the group:handle tmux target string.
func windowTarget(group, handle string) string {
	return group + ":" + handle
}

func (t *TmuxAdapter) NewWindow(ctx context.Context, group, name, workingDir string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitForInterval()

	log.Printf("[MULTIPLEXER] creating window %s in group %s (cwd=%s)", name, group, workingDir)

	args := []string{"new-window", "-d", "-P", "-F", "#{window_id}", "-t", group, "-n", name}
	if workingDir != "" {
		args = append(args, "-c", workingDir)
	}

	output, err := t.run(ctx, args...)
	if err != nil {
		// Group session may not exist yet; create it then retry once.
		if _, sessErr := t.run(ctx, "new-session", "-d", "-s", group); sessErr == nil {
			output, err = t.run(ctx, args...)
		}
		if err != nil {
			return "", fmt.Errorf("multiplexer: failed to create window %s: %w (output: %s)", name, err, string(output))
		}
	}

	handle := strings.TrimSpace(string(output))
	if handle == "" {
		return "", fmt.Errorf("multiplexer: empty window id for %s", name)
	}
	return handle, nil
}

func (t *TmuxAdapter) KillWindow(ctx context.Context, group, handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitForInterval()

	output, err := t.run(ctx, "kill-window", "-t", windowTarget(group, handle))
	if err != nil {
		if strings.Contains(string(output), "can't find window") {
			return &ErrNotFound{Handle: handle}
		}
		return fmt.Errorf("multiplexer: failed to kill window %s: %w (output: %s)", handle, err, string(output))
	}
	return nil
}

func (t *TmuxAdapter) ListWindows(ctx context.Context, group string) ([]WindowInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	output, err := t.run(ctx, "list-windows", "-t", group, "-F", "#{window_id}\t#{window_name}")
	if err != nil {
		return nil, fmt.Errorf("multiplexer: failed to list windows in %s: %w (output: %s)", group, err, string(output))
	}

	var windows []WindowInfo
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		windows = append(windows, WindowInfo{Handle: parts[0], Name: parts[1]})
	}
	return windows, nil
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func (t *TmuxAdapter) CapturePane(ctx context.Context, group, handle string, maxLines int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	output, err := t.run(ctx, "capture-pane", "-p", "-e", "-t", windowTarget(group, handle))
	if err != nil {
		if strings.Contains(string(output), "can't find window") || strings.Contains(string(output), "can't find pane") {
			return "", nil
		}
		return "", fmt.Errorf("multiplexer: failed to capture pane %s: %w (output: %s)", handle, err, string(output))
	}

	text := ansiRe.ReplaceAll(bytes.TrimRight(output, "\n"), nil)
	if maxLines <= 0 {
		return string(text), nil
	}
	lines := strings.Split(string(text), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (t *TmuxAdapter) SendText(ctx context.Context, group, handle, text string, pressEnter bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitForInterval()

	args := []string{"send-keys", "-t", windowTarget(group, handle), "-l", "--", text}
	output, err := t.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("multiplexer: failed to send text to %s: %w (output: %s)", handle, err, string(output))
	}
	if pressEnter {
		output, err = t.run(ctx, "send-keys", "-t", windowTarget(group, handle), "Enter")
		if err != nil {
			return fmt.Errorf("multiplexer: failed to send Enter to %s: %w (output: %s)", handle, err, string(output))
		}
	}
	return nil
}

var namedKeyMap = map[NamedKey]string{
	KeyEnter:  "Enter",
	KeyEscape: "Escape",
	KeyCtrlC:  "C-c",
	KeyUp:     "Up",
	KeyDown:   "Down",
}

func (t *TmuxAdapter) SendKey(ctx context.Context, group, handle string, key NamedKey) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitForInterval()

	tmuxKey, ok := namedKeyMap[key]
	if !ok {
		return fmt.Errorf("multiplexer: unknown named key %q", key)
	}

	output, err := t.run(ctx, "send-keys", "-t", windowTarget(group, handle), tmuxKey)
	if err != nil {
		return fmt.Errorf("multiplexer: failed to send key %s to %s: %w (output: %s)", key, handle, err, string(output))
	}
	return nil
}

func (t *TmuxAdapter) MoveWindow(ctx context.Context, group, handle, targetGroup string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waitForInterval()

	output, err := t.run(ctx, "move-window", "-s", windowTarget(group, handle), "-t", targetGroup+":")
	if err != nil {
		if _, sessErr := t.run(ctx, "new-session", "-d", "-s", targetGroup); sessErr == nil {
			output, err = t.run(ctx, "move-window", "-s", windowTarget(group, handle), "-t", targetGroup+":")
		}
		if err != nil {
			return fmt.Errorf("multiplexer: failed to move window %s to %s: %w (output: %s)", handle, targetGroup, err, string(output))
		}
	}
	return nil
}
