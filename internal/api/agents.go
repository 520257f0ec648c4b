package api

import (
	"net/http"

	"github.com/overcode/overcode/internal/multiplexer"
	"github.com/overcode/overcode/internal/registry"
	"github.com/overcode/overcode/internal/supervisor"
	"github.com/overcode/overcode/internal/types"
)

// handleLaunch creates a new session. Launching the window itself may
// take a moment; the response always carries the session record once
// the window is open, so pollers can key off its id immediately.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Directory    string `json:"directory"`
		Name         string `json:"name"`
		Prompt       string `json:"prompt"`
		Permissions  string `json:"permissions"`
		Repo         string `json:"repo"`
		Branch       string `json:"branch"`
		AgentValue   int    `json:"agent_value"`
		ForbidRename bool   `json:"forbid_rename"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Directory == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "directory and name are required")
		return
	}

	opts := registry.CreateOptions{
		Repo:           req.Repo,
		Branch:         req.Branch,
		Permissiveness: types.Permissiveness(req.Permissions),
		AgentValue:     req.AgentValue,
		ForbidRename:   req.ForbidRename,
	}

	sess, err := s.cfg.Registry.Create(req.Name, req.Directory, s.cfg.DefaultCommand, opts)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	if req.Prompt != "" {
		if err := s.cfg.Registry.SendText(sess.ID, req.Prompt, true); err != nil {
			writeError(w, http.StatusInternalServerError, "session created but failed to send initial prompt: "+err.Error())
			return
		}
	}

	writeOK(w, sess)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Text  string `json:"text"`
		Enter bool   `json:"enter"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SendText(sess.ID, req.Text, req.Enter); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"sent": true})
}

var namedKeys = map[string]multiplexer.NamedKey{
	"enter":  multiplexer.KeyEnter,
	"escape": multiplexer.KeyEscape,
	"ctrl-c": multiplexer.KeyCtrlC,
	"up":     multiplexer.KeyUp,
	"down":   multiplexer.KeyDown,
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Key string `json:"key"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key, ok := namedKeys[req.Key]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown key: "+req.Key)
		return
	}

	if err := s.cfg.Registry.SendKey(sess.ID, key); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"sent": true})
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Cascade bool `json:"cascade"`
	}
	decodeJSON(w, r, &req) // a missing/empty body means cascade=false

	if err := s.cfg.Registry.Terminate(sess.ID, req.Cascade); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"terminated": true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	restarted, err := s.cfg.Registry.Restart(sess.ID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, restarted)
}

// handleStandingOrders handles both PUT (set text or preset) and
// DELETE (clear).
func (s *Server) handleStandingOrders(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.cfg.Registry.SetStandingOrders(sess.ID, ""); err != nil {
			writeRegistryError(w, err)
			return
		}
		writeOK(w, map[string]bool{"cleared": true})
		return
	}

	var req struct {
		Text   string `json:"text"`
		Preset string `json:"preset"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := req.Text
	if input == "" {
		input = req.Preset
	}
	resolved, _ := supervisor.Resolve(input)

	if err := s.cfg.Registry.SetStandingOrders(sess.ID, resolved); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]string{"standing_orders": resolved})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		USD float64 `json:"usd"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SetBudget(sess.ID, req.USD); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]float64{"cost_budget": req.USD})
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Value int `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SetValue(sess.ID, req.Value); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]int{"agent_value": req.Value})
}

func (s *Server) handleAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.Annotate(sess.ID, req.Text); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]string{"annotation": req.Text})
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Asleep bool `json:"asleep"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SetSleep(sess.ID, req.Asleep); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"is_asleep": req.Asleep})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Enabled     bool   `json:"enabled"`
		Frequency   int    `json:"frequency"`
		Instruction string `json:"instruction"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SetHeartbeat(sess.ID, req.Enabled, req.Frequency, req.Instruction); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) handleHeartbeatPause(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	if err := s.cfg.Registry.PauseHeartbeat(sess.ID); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"paused": true})
}

func (s *Server) handleHeartbeatResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	if err := s.cfg.Registry.ResumeHeartbeat(sess.ID); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"paused": false})
}

func (s *Server) handleTimeContext(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SetTimeContextEnabled(sess.ID, req.Enabled); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"time_context_enabled": req.Enabled})
}

func (s *Server) handleHookDetection(w http.ResponseWriter, r *http.Request) {
	sess, err := s.resolveSession(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.cfg.Registry.SetHookDetectionEnabled(sess.ID, req.Enabled); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOK(w, map[string]bool{"hook_detection_enabled": req.Enabled})
}

func (s *Server) handleTransport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetGroup string `json:"target_group"`
	}
	decodeJSON(w, r, &req)
	if req.TargetGroup == "" {
		writeError(w, http.StatusBadRequest, "target_group is required")
		return
	}

	moved, err := s.cfg.Registry.TransportAll(req.TargetGroup)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]int{"moved": moved})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IncludeDone bool `json:"include_done"`
	}
	decodeJSON(w, r, &req)

	removed, err := s.cfg.Registry.Cleanup(req.IncludeDone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]int{"removed": removed})
}
