// Package bus runs an embedded NATS server carrying MonitorState
// snapshots and attention bells between Overcode's daemon and its
// dashboard clients, bridged to browser clients over a gorilla/websocket
// hub: an always-on push channel alongside the polled /api/status.
package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// SubjectMonitorState is where tick snapshots are published.
const SubjectMonitorState = "overcode.monitor.state"

// SubjectAttention is where coalesced attention bells are published.
const SubjectAttention = "overcode.attention"

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Port      int
	JetStream bool
	DataDir   string
}

// Server wraps an embedded NATS server, started in-process so the
// daemon needs no external broker.
type Server struct {
	mu      sync.RWMutex
	srv     *server.Server
	config  ServerConfig
	running bool
}

// NewServer constructs a Server; Port defaults to 4222 if unset.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Port <= 0 {
		config.Port = 4222
	}
	if config.JetStream && config.DataDir == "" {
		return nil, fmt.Errorf("bus: data_dir is required when jetstream is enabled")
	}
	return &Server{config: config}, nil
}

// Start launches the embedded server and blocks until ready.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("bus: server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       s.config.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	if s.config.JetStream {
		opts.JetStream = true
		opts.StoreDir = s.config.DataDir
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("bus: failed to create nats server: %w", err)
	}
	s.srv = ns

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("bus: server not ready for connections")
	}
	s.running = true
	return nil
}

// Shutdown gracefully stops the embedded server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.srv == nil {
		return
	}
	s.srv.Shutdown()
	s.srv.WaitForShutdown()
	s.running = false
	s.srv = nil
}

// URL returns the server's NATS connection URL.
func (s *Server) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("nats://127.0.0.1:%d", s.config.Port)
}

// IsRunning reports whether the server is currently accepting
// connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
