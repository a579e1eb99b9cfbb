package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scopeview/pkg/recorder"
)

// handleRecord reads or replaces the recording switch. The loop picks the new
// settings up on its next sample: switching on truncates the target file, switching
// off closes it.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"settings":  s.state.Loop().Controls().Recording,
			"recording": s.state.Loop().Status().Recording,
		})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req recorder.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", 400)
		return
	}

	c, err := s.state.SetRecording(req)
	if err != nil {
		code := 500
		if errors.Is(err, recorder.ErrNoPath) || errors.Is(err, recorder.ErrBadFormat) {
			code = 400
		}
		http.Error(w, err.Error(), code)
		return
	}

	s.hub.broadcastJSON(map[string]interface{}{
		"type":      "recording_status",
		"recording": c.Recording.Enabled,
		"path":      c.Recording.Path,
		"format":    c.Recording.Format,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": c.Recording,
	})
}
