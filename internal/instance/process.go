package instance

import (
	"os"
	"syscall"
)

// IsProcessRunning reports whether pid names a live process, using a
// signal-0 probe (the POSIX idiom; Overcode's multiplexer target is
// tmux, so the classic Windows-only GetProcessName check has no
// platform to run on here).
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
