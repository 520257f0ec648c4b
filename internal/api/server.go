// Package api implements Overcode's Control API: a gorilla/mux router
// covering session lifecycle and per-agent mutation endpoints, plus the
// read-only /api/status and /api/timeline/raw.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/overcode/overcode/internal/bus"
	"github.com/overcode/overcode/internal/history"
	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/types"
)

// MaxPayloadSize bounds request bodies, mirroring the classic
// limitRequestSize DoS guard.
const MaxPayloadSize = 1 << 20 // 1 MiB

// ShutdownGrace bounds how long Shutdown waits for in-flight requests.
const ShutdownGrace = 5 * time.Second

// StatusSource supplies the current MonitorState projection for
// /api/status; satisfied by *monitor.Loop.
type StatusSource interface {
	Snapshot() types.MonitorState
}

// TimelineReader supplies the last H hours of status history for
// /api/timeline/raw; satisfied by *history.Log or *store.HistoryMirror.
type TimelineReader interface {
	RawSince(since time.Duration, now time.Time) ([]history.Entry, error)
}

// PeerStatesReader exposes the Federation Poller's last-known peer
// reachability for inclusion in daemon status.
type PeerStatesReader interface {
	States() map[string]types.PeerState
}

// DaemonControl lets the Control API restart the Monitor Loop and
// start/stop the Supervisor Loop without importing cmd/overcode's
// wiring directly.
type DaemonControl interface {
	RestartMonitor() error
	StartSupervisor() error
	StopSupervisor() error
}

// Config configures a Server.
type Config struct {
	Port      int
	APIKey    string // shared secret; empty disables auth entirely
	Registry  *registry.Registry
	Status    StatusSource
	Timeline  TimelineReader
	Peers     PeerStatesReader
	Daemon    DaemonControl
	Hub       *bus.Hub
	StartedAt time.Time

	// DefaultCommand is the argv launched for every new session; the
	// launch endpoint carries no per-call command (its body is just
	// {directory, name, prompt?, permissions}), so the supervised CLI
	// is a deployment-wide choice.
	DefaultCommand []string
}

// Server is the Control API's HTTP server.
type Server struct {
	cfg        Config
	router     *mux.Router
	httpServer *http.Server

	// ShutdownChan receives one value when a client requests the
	// whole daemon shut down via /api/daemon/shutdown; cmd/overcode's
	// main select loop watches it alongside OS signals.
	ShutdownChan chan struct{}
}

// NewServer builds a Server with all routes registered.
func NewServer(cfg Config) *Server {
	if cfg.Port <= 0 {
		cfg.Port = 7732
	}
	if len(cfg.DefaultCommand) == 0 {
		cfg.DefaultCommand = []string{"claude"}
	}
	s := &Server{cfg: cfg, ShutdownChan: make(chan struct{}, 1)}
	s.setupRoutes()
	return s
}

// RequestShutdown signals ShutdownChan, non-blocking if already
// pending.
func (s *Server) RequestShutdown() {
	select {
	case s.ShutdownChan <- struct{}{}:
	default:
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[API] server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, ShutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying mux.Router, mainly for tests that want
// to drive requests through httptest without binding a real port.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(securityHeadersMiddleware)
	s.router.Use(s.authMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/timeline/raw", s.handleTimelineRaw).Methods(http.MethodGet)

	api.HandleFunc("/agents/launch", s.handleLaunch).Methods(http.MethodPost)
	api.HandleFunc("/agents/transport", s.handleTransport).Methods(http.MethodPost)
	api.HandleFunc("/agents/cleanup", s.handleCleanup).Methods(http.MethodPost)

	api.HandleFunc("/agents/{name}/send", s.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/keys", s.handleKeys).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/kill", s.handleKill).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/restart", s.handleRestart).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/standing-orders", s.handleStandingOrders).Methods(http.MethodPut, http.MethodDelete)
	api.HandleFunc("/agents/{name}/budget", s.handleBudget).Methods(http.MethodPut)
	api.HandleFunc("/agents/{name}/value", s.handleValue).Methods(http.MethodPut)
	api.HandleFunc("/agents/{name}/annotation", s.handleAnnotation).Methods(http.MethodPut)
	api.HandleFunc("/agents/{name}/sleep", s.handleSleep).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/heartbeat", s.handleHeartbeat).Methods(http.MethodPut)
	api.HandleFunc("/agents/{name}/heartbeat/pause", s.handleHeartbeatPause).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/heartbeat/resume", s.handleHeartbeatResume).Methods(http.MethodPost)
	api.HandleFunc("/agents/{name}/time-context", s.handleTimeContext).Methods(http.MethodPut)
	api.HandleFunc("/agents/{name}/hook-detection", s.handleHookDetection).Methods(http.MethodPut)

	api.HandleFunc("/daemon/monitor/restart", s.handleMonitorRestart).Methods(http.MethodPost)
	api.HandleFunc("/daemon/supervisor/start", s.handleSupervisorStart).Methods(http.MethodPost)
	api.HandleFunc("/daemon/supervisor/stop", s.handleSupervisorStop).Methods(http.MethodPost)
	api.HandleFunc("/daemon/shutdown", s.handleDaemonShutdown).Methods(http.MethodPost)

	if s.cfg.Hub != nil {
		s.router.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
			if err := s.cfg.Hub.ServeWS(w, r); err != nil {
				log.Printf("[API] websocket upgrade failed: %v", err)
			}
		})
	}
}

// securityHeadersMiddleware strips version-revealing headers, adapted
// from the classic server.SecurityHeadersMiddleware.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "overcode")
		w.Header().Del("X-Powered-By")
		next.ServeHTTP(w, r)
	})
}

// authMiddleware enforces the shared-secret X-API-Key header on every
// route except the read-only /api/status, which local peers poll
// without credentials. Disabled entirely when no key is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" || r.URL.Path == "/api/status" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if got == "" {
			got = r.Header.Get("X-Api-Key")
		}
		if got != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// envelope is the {ok, error, data} shape every Control API response
// uses; the Federation Poller's statusEnvelope decodes exactly this
// shape.
type envelope struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{OK: false, Error: message})
}

// writeRegistryError maps a registry error to its HTTP status: not found
// 404, remote read-only 403, name in use 409, anything else 500.
func writeRegistryError(w http.ResponseWriter, err error) {
	switch err.(type) {
	case *registry.ErrNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case *registry.ErrRemoteReadOnly:
		writeError(w, http.StatusForbidden, err.Error())
	case *registry.ErrNameInUse:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadSize)
	return json.NewDecoder(r.Body).Decode(v)
}

// resolveSession resolves the {name} path variable to a session ID,
// trying it as a literal ID first and falling back to name lookup, so
// callers can address sessions either way.
func (s *Server) resolveSession(r *http.Request) (*types.AgentSession, error) {
	name := mux.Vars(r)["name"]
	if sess := s.cfg.Registry.Get(name); sess != nil {
		return sess, nil
	}
	if sess := s.cfg.Registry.GetByName(name); sess != nil {
		return sess, nil
	}
	return nil, &registry.ErrNotFound{ID: name}
}
