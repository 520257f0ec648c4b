// Package multiplexer defines the narrow interface Overcode's core uses to
// drive an external terminal multiplexer, plus a tmux-backed implementation.
// The interface is intentionally small: create/kill windows, scrape pane
// text, inject keys.
package multiplexer

import (
	"context"
	"time"
)

// NamedKey is a key Overcode can inject into a pane without it being
// confused for literal text (send_key vs send_text).
type NamedKey string

const (
	KeyEnter  NamedKey = "enter"
	KeyEscape NamedKey = "escape"
	KeyCtrlC  NamedKey = "ctrl-c"
	KeyUp     NamedKey = "up"
	KeyDown   NamedKey = "down"
)

// WindowInfo is one entry in a list_windows result.
type WindowInfo struct {
	Handle string
	Name   string
}

// ErrNotFound is returned by KillWindow when the window handle no longer
// exists.
type ErrNotFound struct {
	Handle string
}

func (e *ErrNotFound) Error() string {
	return "multiplexer: window not found: " + e.Handle
}

// Adapter is the narrow surface the core depends on. Every method takes a
// context so the caller can bound a single multiplexer call independently
// of the monitor loop's own tick budget.
type Adapter interface {
	// NewWindow creates a window running in the named group, seeded at
	// workingDir, and returns an opaque handle.
	NewWindow(ctx context.Context, group, name, workingDir string) (handle string, err error)

	// KillWindow closes a window. Returns *ErrNotFound if the handle is
	// already gone.
	KillWindow(ctx context.Context, group, handle string) error

	// ListWindows enumerates windows currently in the group.
	ListWindows(ctx context.Context, group string) ([]WindowInfo, error)

	// CapturePane returns the trailing maxLines lines of pane text with
	// ANSI control sequences stripped, preserving empty lines. Returns
	// ("", nil) if the window no longer exists.
	CapturePane(ctx context.Context, group, handle string, maxLines int) (string, error)

	// SendText delivers literal text to the pane, optionally followed by
	// a newline-equivalent if pressEnter is true. Text is never
	// pre-split on embedded newlines.
	SendText(ctx context.Context, group, handle, text string, pressEnter bool) error

	// SendKey injects a single named key.
	SendKey(ctx context.Context, group, handle string, key NamedKey) error

	// MoveWindow relocates a window into a different group, preserving
	// its handle.
	MoveWindow(ctx context.Context, group, handle, targetGroup string) error
}

// DefaultCommandTimeout bounds a single multiplexer CLI invocation.
const DefaultCommandTimeout = 5 * time.Second

// MinOpInterval is the minimum spacing enforced between pane-mutating
// operations (create/kill/send) against the same multiplexer server
// process, mirroring the classic rate-limiting discipline.
const MinOpInterval = 100 * time.Millisecond
