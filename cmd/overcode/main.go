// Command overcode is the daemon: it owns the Monitor Loop, the
// Supervisor Loop, the Federation Poller, and the Control API that
// front-ends all of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/overcode/overcode/internal/api"
	"github.com/overcode/overcode/internal/bus"
	"github.com/overcode/overcode/internal/config"
	"github.com/overcode/overcode/internal/events"
	"github.com/overcode/overcode/internal/federation"
	"github.com/overcode/overcode/internal/history"
	"github.com/overcode/overcode/internal/instance"
	"github.com/overcode/overcode/internal/monitor"
	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/notify"
	"github.com/overcode/overcode/internal/presence"
	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/store"
	"github.com/overcode/overcode/internal/supervisor"
	"github.com/overcode/overcode/internal/types"
)

func main() {
	configPath := flag.String("config", "overcode.yaml", "deployment configuration file")
	port := flag.Int("port", 0, "Control API port (overrides the config's api_port)")
	status := flag.Bool("status", false, "show status of a running instance and exit")
	stop := flag.Bool("stop", false, "request a running instance shut down and exit")
	flag.Parse()

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to determine base path: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(*configPath) {
		*configPath = filepath.Join(basePath, *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.APIPort = *port
	}

	pidFilePath := filepath.Join(cfg.StateDir, cfg.MultiplexerGroup, "overcode.pid")

	if *status {
		showInstanceStatus(pidFilePath, cfg.APIPort)
		os.Exit(0)
	}
	if *stop {
		stopInstance(pidFilePath, cfg.APIKey)
		os.Exit(0)
	}

	instanceMgr := instance.NewManager(pidFilePath, cfg.APIPort)
	if existing, err := instanceMgr.CheckExistingInstance(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to check for existing instance: %v\n", err)
		os.Exit(1)
	} else if existing != nil && existing.IsRunning {
		fmt.Fprintf(os.Stderr, "overcode is already running for group %q (pid %d, port %d)\n",
			cfg.MultiplexerGroup, existing.PID, existing.Port)
		fmt.Fprintln(os.Stderr, "use -stop to shut it down, or point -config at a different group")
		os.Exit(1)
	}

	if err := instanceMgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer instanceMgr.ReleaseLock()

	if !instance.IsPortAvailable(cfg.APIPort) {
		fmt.Fprintf(os.Stderr, "port %d is already in use; pick another with -port\n", cfg.APIPort)
		os.Exit(1)
	}

	groupDir := filepath.Join(cfg.StateDir, cfg.MultiplexerGroup)
	if err := os.MkdirAll(groupDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create state directory: %v\n", err)
		os.Exit(1)
	}

	db, err := store.Open(filepath.Join(groupDir, "overcode.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	historyMirror := store.NewHistoryMirror(db)
	eventStore := store.NewEventStore(db)
	_ = store.NewPeerCache(db) // reserved for a future peer-roster view; nothing reads it yet

	adapter := multiplexer.NewTmuxAdapter()

	reg := registry.New(cfg.StateDir, cfg.MultiplexerGroup, "local", adapter)
	if err := reg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load registry: %v\n", err)
		os.Exit(1)
	}

	historyLog := history.New(cfg.StateDir, cfg.MultiplexerGroup)
	historyWriter := dualHistoryWriter{primary: historyLog, mirror: historyMirror}

	eventBus := events.NewBus(eventStore)

	hub := bus.NewHub()
	go hub.Run()

	natsServer, err := bus.NewServer(bus.ServerConfig{DataDir: filepath.Join(groupDir, "nats")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded message broker: %v\n", err)
		os.Exit(1)
	}
	if err := natsServer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "embedded message broker failed to become ready: %v\n", err)
		os.Exit(1)
	}
	defer natsServer.Shutdown()

	natsClient, err := bus.NewClient(natsServer.URL())
	if err != nil {
		log.Printf("[OVERCODE] failed to connect internal bus client (non-fatal): %v", err)
	}
	if natsClient != nil {
		defer natsClient.Close()
	}

	notifyRouter := notify.NewRouter(nil)
	notifyManager := notify.NewManager(notify.Config{
		AppID:          "overcode",
		EnableToast:    true,
		EnableTerminal: true,
	}, notifyRouter)

	attention := attentionSink{bus: eventBus, hub: hub, client: natsClient, notify: notifyManager, source: cfg.MultiplexerGroup}

	presenceReader := presence.NewReader(cfg.StateDir, cfg.TickInterval)

	supervisorLoop := supervisor.NewLoop(reg, adapter, cfg.MultiplexerGroup)
	supervisorLoop.MinGap = cfg.SupervisorMinGap
	supervisorLoop.StateDocumentPath = filepath.Join(groupDir, "monitor_daemon_state.json")
	supervisorLoop.Phrases = supervisor.InterventionPhrases{
		ActionPhrases:   cfg.ActionPhrases,
		NoActionPhrases: cfg.NoActionPhrases,
	}

	monitorLoop := monitor.NewLoop(reg, adapter, cfg.MultiplexerGroup, cfg.StateDir)
	monitorLoop.Interval = cfg.TickInterval
	monitorLoop.Presence = presenceReader
	monitorLoop.Attention = attention
	monitorLoop.History = historyWriter
	monitorLoop.Supervisor = supervisorLoop

	var poller *federation.Poller
	if len(cfg.Peers) > 0 {
		poller = federation.New(reg, cfg.Peers)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitorLoop.Run(ctx)
	if poller != nil {
		go poller.Run(ctx)
	}

	broadcastTicker := time.NewTicker(cfg.TickInterval)
	defer broadcastTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-broadcastTicker.C:
				state := monitorLoop.Snapshot()
				hub.BroadcastMonitorState(state)
				if natsClient != nil {
					if err := natsClient.PublishMonitorState(state); err != nil {
						log.Printf("[OVERCODE] failed to publish monitor state over internal bus (non-fatal): %v", err)
					}
				}
			}
		}
	}()

	retentionTicker := time.NewTicker(time.Hour)
	defer retentionTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-retentionTicker.C:
				now := time.Now()
				if err := historyLog.ClearOlderThan(cfg.RetentionHours, now); err != nil {
					log.Printf("[OVERCODE] history retention sweep failed (non-fatal): %v", err)
				}
				if err := historyMirror.ClearOlderThan(cfg.RetentionHours, now); err != nil {
					log.Printf("[OVERCODE] history mirror retention sweep failed (non-fatal): %v", err)
				}
			}
		}
	}()

	control := &daemonControl{monitor: monitorLoop, supervisor: supervisorLoop}

	apiCfg := api.Config{
		Port:           cfg.APIPort,
		APIKey:         cfg.APIKey,
		Registry:       reg,
		Status:         monitorLoop,
		Timeline:       historyMirror,
		Daemon:         control,
		Hub:            hub,
		StartedAt:      time.Now(),
		DefaultCommand: []string{"claude"},
	}
	if poller != nil {
		apiCfg.Peers = poller
	}
	srv := api.NewServer(apiCfg)

	srv.Start()

	healthy := false
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if instance.HealthCheck(cfg.APIPort) == nil {
			healthy = true
			break
		}
	}
	if !healthy {
		fmt.Fprintln(os.Stderr, "Control API failed to become ready within timeout")
		os.Exit(1)
	}

	if err := instanceMgr.WritePIDFile(os.Getpid(), cfg.APIPort, basePath, monitor.DaemonVersion); err != nil {
		log.Printf("[OVERCODE] failed to write PID file (non-fatal): %v", err)
	}

	log.Printf("[OVERCODE] ready: group=%s port=%d state_dir=%s", cfg.MultiplexerGroup, cfg.APIPort, cfg.StateDir)

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	select {
	case <-shutdownSignal:
		log.Println("[OVERCODE] shutting down (signal received)")
	case <-srv.ShutdownChan:
		log.Println("[OVERCODE] shutting down (API request)")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	instanceMgr.RemovePIDFile()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[OVERCODE] HTTP shutdown error: %v", err)
	}

	log.Println("[OVERCODE] goodbye")
}

// getBasePath returns the directory containing the executable, or the
// current working directory when running under `go run` or a bare
// `go test` binary.
func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func showInstanceStatus(pidFilePath string, port int) {
	mgr := instance.NewManager(pidFilePath, port)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if info == nil || !info.IsRunning {
		fmt.Println("no overcode instance is currently running")
		return
	}
	respond := "not responding"
	if info.IsResponding {
		respond = "responding"
	}
	fmt.Printf("overcode running: pid=%d port=%d started=%s (%s) version=%s\n",
		info.PID, info.Port, info.StartTime.Format(time.RFC3339), respond, info.Version)
}

func stopInstance(pidFilePath, apiKey string) {
	mgr := instance.NewManager(pidFilePath, 0)
	info, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if info == nil || !info.IsRunning {
		fmt.Println("no overcode instance is currently running")
		return
	}

	url := fmt.Sprintf("http://localhost:%d/api/daemon/shutdown", info.Port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build shutdown request: %v\n", err)
		os.Exit(1)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to reach running instance: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	fmt.Println("shutdown requested")
}

// dualHistoryWriter satisfies monitor.HistoryWriter by fanning out to
// both the canonical CSV log and its indexed sqlite mirror.
type dualHistoryWriter struct {
	primary *history.Log
	mirror  *store.HistoryMirror
}

func (d dualHistoryWriter) Append(timestamp time.Time, agent string, status types.AgentStatus, activity string) error {
	if err := d.primary.Append(timestamp, agent, status, activity); err != nil {
		return err
	}
	return d.mirror.Append(timestamp, agent, status, activity)
}

// attentionSink satisfies monitor.AttentionSink by turning a batch of
// newly-waiting session names into one events.Event, broadcasting it
// to connected dashboards and routing it to external channels via
// notify.Manager.
type attentionSink struct {
	bus    *events.Bus
	hub    *bus.Hub
	client *bus.Client
	notify *notify.Manager
	source string
}

func (a attentionSink) NotifyAttention(names []string) {
	now := time.Now()
	message := fmt.Sprintf("%d session(s) waiting on you: %v", len(names), names)

	event := events.New(events.TypeAttention, a.source, "", events.PriorityNormal, map[string]interface{}{
		"sessions": names,
	}, now)

	a.bus.Publish(event)
	a.hub.BroadcastAttention(message)
	if a.client != nil {
		if err := a.client.PublishAttention(message); err != nil {
			log.Printf("[OVERCODE] failed to publish attention over internal bus (non-fatal): %v", err)
		}
	}
	if err := a.notify.NotifyAttention(event, message, now); err != nil {
		log.Printf("[OVERCODE] attention notification delivery failed (non-fatal): %v", err)
	}
}

// daemonControl satisfies api.DaemonControl.
type daemonControl struct {
	monitor    *monitor.Loop
	supervisor *supervisor.Loop
}

func (d *daemonControl) RestartMonitor() error {
	// The Monitor Loop has no internal state that a restart would reset
	// beyond what the next tick already recomputes; treat it as a no-op
	// success so the endpoint stays a stable no-arg control regardless.
	return nil
}

func (d *daemonControl) StartSupervisor() error { return d.supervisor.Start() }
func (d *daemonControl) StopSupervisor() error  { return d.supervisor.Stop() }
