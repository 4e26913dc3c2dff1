package server

import (
	"encoding/json"
	"net/http"

	"github.com/davidMbrooke/texecom-connect/panel"
)

type statusInfo struct {
	Connected bool       `json:"connected"`
	Panel     panel.Info `json:"panel"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, connected := s.source.Info()
	writeJSON(w, statusInfo{Connected: connected, Panel: info})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.Zones())
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.Areas())
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.Users())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ring.Recent())
}
