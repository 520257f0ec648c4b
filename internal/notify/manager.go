// Package notify fans the Monitor Loop's coalesced attention bell
// out across every configured channel: a
// Windows toast, a terminal title flash, a dashboard banner, and any
// external webhook/email channels registered with the Router.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/overcode/overcode/internal/events"
)

// Config controls which in-process channels Manager enables.
type Config struct {
	AppID          string
	DashboardURL   string
	EnableToast    bool
	EnableTerminal bool
	EnableBanner   bool
	Logger         *log.Logger
}

// Manager coordinates the toast, terminal, and banner channels, and
// forwards every event it handles to an events.Router for external
// delivery (Slack, Discord, email).
type Manager struct {
	toast    *ToastNotifier
	terminal *TerminalNotifier
	banner   *BannerNotifier
	router   *Router

	mu      sync.RWMutex
	enabled bool
	logger  *log.Logger
}

// NewManager constructs a Manager; pass nil for router if no external
// channels are configured.
func NewManager(cfg Config, router *Router) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	m := &Manager{
		toast:    NewToastNotifier(cfg.AppID, cfg.DashboardURL),
		terminal: NewTerminalNotifier(),
		banner:   NewBannerNotifier(),
		router:   router,
		enabled:  cfg.EnableToast || cfg.EnableTerminal || cfg.EnableBanner,
		logger:   cfg.Logger,
	}
	m.logger.Printf("[NOTIFY] toast supported=%v terminal supported=%v banner=true",
		m.toast.IsSupported(), m.terminal.IsSupported())
	return m
}

// NotifyAttention drives every enabled channel plus the external
// router for one coalesced attention event.
func (m *Manager) NotifyAttention(event *events.Event, message string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return fmt.Errorf("notifications are disabled")
	}

	var errs []error

	if m.toast.IsSupported() {
		if err := m.toast.NotifyAttention(message); err != nil {
			errs = append(errs, fmt.Errorf("toast: %w", err))
		}
	}
	if m.terminal.IsSupported() {
		if err := m.terminal.Flash(message); err != nil {
			errs = append(errs, fmt.Errorf("terminal: %w", err))
		}
	}
	m.banner.Show(message, BannerAttention, now)

	if m.router != nil && event != nil {
		m.router.Route(*event)
	}

	if len(errs) > 0 {
		return fmt.Errorf("some notification channels failed: %v", errs)
	}
	return nil
}

// ClearAlert restores the terminal title and hides the banner.
func (m *Manager) ClearAlert() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.terminal.IsSupported() {
		if err := m.terminal.ClearAlert(); err != nil {
			errs = append(errs, err)
		}
	}
	m.banner.Clear()

	if len(errs) > 0 {
		return fmt.Errorf("some clear operations failed: %v", errs)
	}
	return nil
}

// BannerState exposes the dashboard banner for the Control API.
func (m *Manager) BannerState() BannerState {
	return m.banner.State()
}

// IsEnabled reports whether any in-process channel is active.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SetEnabled toggles every in-process channel.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}
