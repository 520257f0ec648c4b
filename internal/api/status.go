package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/overcode/overcode/internal/types"
)

// statusEnvelope is the exact wire shape the Federation Poller decodes
// (federation.statusEnvelope): {ok, error, data}, with data holding the
// bare MonitorState so a peer's /api/status can be polled directly.
// Peer reachability and uptime ride alongside as extra top-level
// fields, which a strict {ok,error,data}-only decoder simply ignores.
type statusEnvelope struct {
	OK      bool                       `json:"ok"`
	Error   string                     `json:"error,omitempty"`
	Data    types.MonitorState         `json:"data"`
	Peers   map[string]types.PeerState `json:"peers,omitempty"`
	Uptime  float64                    `json:"uptime_seconds"`
	Version string                     `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "status source not configured")
		return
	}

	resp := statusEnvelope{
		OK:      true,
		Data:    s.cfg.Status.Snapshot(),
		Uptime:  time.Since(s.cfg.StartedAt).Seconds(),
		Version: "overcode/0.1",
	}
	if s.cfg.Peers != nil {
		resp.Peers = s.cfg.Peers.States()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleTimelineRaw serves GET /api/timeline/raw?hours=H: the last H
// hours of (timestamp, status) pairs per agent from the status history
// log.
func (s *Server) handleTimelineRaw(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Timeline == nil {
		writeError(w, http.StatusServiceUnavailable, "timeline reader not configured")
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	entries, err := s.cfg.Timeline.RawSince(time.Duration(hours)*time.Hour, time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]interface{}{"entries": entries, "hours": hours})
}
