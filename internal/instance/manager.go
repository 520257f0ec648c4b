// Package instance enforces single-instance-per-group startup via a cross-platform advisory file lock, and tracks the PID file
// a running daemon leaves behind for `overcode -status`/`overcode -stop`
// to find it by.
package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// Manager guards one daemon's PID file and exclusive startup lock.
type Manager struct {
	pidFilePath string
	port        int
	lock        *flock.Flock
	acquired    bool
}

// Info describes a running (or previously running) instance.
type Info struct {
	PID          int
	Port         int
	StartTime    time.Time
	IsRunning    bool
	IsResponding bool
	Version      string
	BasePath     string
}

// PIDFileData is the PID file's on-disk JSON shape.
type PIDFileData struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	BasePath  string    `json:"base_path"`
	Hostname  string    `json:"hostname"`
}

// NewManager constructs a Manager for the given PID file path and port.
func NewManager(pidFilePath string, port int) *Manager {
	return &Manager{
		pidFilePath: pidFilePath,
		port:        port,
		lock:        flock.New(pidFilePath + ".lock"),
	}
}

// AcquireLock takes an exclusive, non-blocking advisory lock, failing
// fast if another instance is already starting.
func (m *Manager) AcquireLock() error {
	locked, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance: failed to acquire startup lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("instance: another instance is already starting (lock held)")
	}
	m.acquired = true
	return nil
}

// ReleaseLock releases the startup lock and removes the lock file.
func (m *Manager) ReleaseLock() error {
	if !m.acquired {
		return nil
	}
	if err := m.lock.Unlock(); err != nil {
		return fmt.Errorf("instance: failed to release startup lock: %w", err)
	}
	m.acquired = false
	os.Remove(m.lock.Path())
	return nil
}

// CheckExistingInstance inspects the PID file and reports whether a
// prior instance still looks alive, cleaning up stale files.
func (m *Manager) CheckExistingInstance() (*Info, error) {
	data, err := m.ReadPIDFile()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("instance: failed to read pid file: %w", err)
	}

	running := IsProcessRunning(data.PID)
	if !running {
		m.RemovePIDFile()
		return nil, nil
	}

	responding := HealthCheck(data.Port) == nil
	return &Info{
		PID:          data.PID,
		Port:         data.Port,
		StartTime:    data.StartedAt,
		IsRunning:    true,
		IsResponding: responding,
		Version:      data.Version,
		BasePath:     data.BasePath,
	}, nil
}

// WritePIDFile records this process's identity for future instances to
// discover.
func (m *Manager) WritePIDFile(pid, port int, basePath, version string) error {
	hostname, _ := os.Hostname()
	data := PIDFileData{
		PID:       pid,
		Port:      port,
		StartedAt: time.Now(),
		Version:   version,
		BasePath:  basePath,
		Hostname:  hostname,
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("instance: failed to marshal pid data: %w", err)
	}
	if err := os.WriteFile(m.pidFilePath, encoded, 0644); err != nil {
		return fmt.Errorf("instance: failed to write pid file: %w", err)
	}
	return nil
}

// ReadPIDFile reads and parses the PID file.
func (m *Manager) ReadPIDFile() (*PIDFileData, error) {
	raw, err := os.ReadFile(m.pidFilePath)
	if err != nil {
		return nil, err
	}
	var data PIDFileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("instance: failed to parse pid file: %w", err)
	}
	return &data, nil
}

// RemovePIDFile deletes the PID file, tolerating its absence.
func (m *Manager) RemovePIDFile() error {
	if err := os.Remove(m.pidFilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("instance: failed to remove pid file: %w", err)
	}
	return nil
}

// Port returns the configured port.
func (m *Manager) Port() int { return m.port }

// SetPort updates the port (used once FindAvailablePort resolves one).
func (m *Manager) SetPort(port int) { m.port = port }
