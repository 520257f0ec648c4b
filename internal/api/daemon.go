package api

import "net/http"

func (s *Server) handleMonitorRestart(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Daemon == nil {
		writeError(w, http.StatusServiceUnavailable, "daemon control not configured")
		return
	}
	if err := s.cfg.Daemon.RestartMonitor(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]bool{"restarted": true})
}

func (s *Server) handleSupervisorStart(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Daemon == nil {
		writeError(w, http.StatusServiceUnavailable, "daemon control not configured")
		return
	}
	if err := s.cfg.Daemon.StartSupervisor(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]bool{"started": true})
}

func (s *Server) handleSupervisorStop(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Daemon == nil {
		writeError(w, http.StatusServiceUnavailable, "daemon control not configured")
		return
	}
	if err := s.cfg.Daemon.StopSupervisor(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]bool{"stopped": true})
}

// handleDaemonShutdown requests the owning process shut down cleanly;
// the actual teardown happens in cmd/overcode's main select loop.
func (s *Server) handleDaemonShutdown(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]bool{"shutting_down": true})
	s.RequestShutdown()
}
