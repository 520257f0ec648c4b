package notify

import (
	"fmt"
	"os"
	"runtime"
	"sync"
)

// TerminalNotifier flashes the controlling terminal's title bar as a
// cheap, always-available attention signal.
type TerminalNotifier struct {
	mu            sync.Mutex
	originalTitle string
}

// NewTerminalNotifier constructs a TerminalNotifier.
func NewTerminalNotifier() *TerminalNotifier {
	return &TerminalNotifier{originalTitle: "overcode"}
}

// SetOriginalTitle records the title to restore on ClearAlert.
func (t *TerminalNotifier) SetOriginalTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.originalTitle = title
}

// Flash sets the terminal title to an alert message.
func (t *TerminalNotifier) Flash(message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTitle(fmt.Sprintf("\U0001F514 overcode - %s", message))
}

// ClearAlert restores the original terminal title.
func (t *TerminalNotifier) ClearAlert() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setTitle(t.originalTitle)
}

func (t *TerminalNotifier) setTitle(title string) error {
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		fmt.Printf("\033]0;%s\007", title)
		return nil
	default:
		return fmt.Errorf("terminal title manipulation not supported on %s", runtime.GOOS)
	}
}

// IsSupported reports whether stdout is a terminal on a supported OS.
func (t *TerminalNotifier) IsSupported() bool {
	if !isTerminal() {
		return false
	}
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		return true
	default:
		return false
	}
}

func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
