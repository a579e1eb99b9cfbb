package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/scopeview/pkg/acquire"
	"github.com/scopeview/pkg/sample"
	"github.com/scopeview/pkg/source"
)

// API Handlers

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sourceErrorStatus maps source and loop errors onto HTTP codes.
func sourceErrorStatus(err error) int {
	switch {
	case errors.Is(err, acquire.ErrRunning), errors.Is(err, acquire.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, source.ErrOpen):
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", 405)
		return
	}
	writeJSON(w, http.StatusOK, s.state.View())
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.state.Source())
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req source.Config
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", 400)
		return
	}
	cfg, err := s.state.SetSource(req)
	if err != nil {
		http.Error(w, err.Error(), sourceErrorStatus(err))
		return
	}

	s.hub.broadcastJSON(map[string]interface{}{
		"type":   "source_update",
		"source": cfg,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"source":  cfg,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", 405)
		return
	}

	runID, err := s.state.Start()
	if err != nil {
		s.log.Warn("start rejected", slog.Any("error", err))
		http.Error(w, err.Error(), sourceErrorStatus(err))
		return
	}

	status := s.state.Loop().Status()
	s.hub.broadcastJSON(statusMessage{Type: "status", Status: status})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"run_id":  runID,
		"source":  status.Source,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", 405)
		return
	}
	if err := s.state.Stop(); err != nil {
		http.Error(w, err.Error(), sourceErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  s.state.Loop().Status(),
	})
}

func (s *Server) handleSmoothing(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		c := s.state.Loop().Controls()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"enabled": c.Smoothing,
			"factor":  c.Factor,
		})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", 405)
		return
	}

	var req struct {
		Enabled *bool    `json:"enabled"`
		Factor  *float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", 400)
		return
	}

	c := s.state.SetSmoothing(req.Enabled, req.Factor)
	s.hub.broadcastJSON(map[string]interface{}{
		"type":    "smoothing_update",
		"enabled": c.Smoothing,
		"factor":  c.Factor,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"enabled": c.Smoothing,
		"factor":  c.Factor,
	})
}

func (s *Server) handleWindowClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", 405)
		return
	}
	s.state.Window().Clear()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := source.ListPorts()
	if err != nil {
		http.Error(w, "Failed to list ports: "+err.Error(), 500)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ports": ports})
}

func (s *Server) handleBauds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bauds":   source.BaudRates,
		"default": source.DefaultBaud,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	points := s.cfg.Server.DefaultPoints
	if v := r.URL.Query().Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid points", 400)
			return
		}
		points = clampPoints(n, s.state.Window().Cap())
	}
	writeJSON(w, http.StatusOK, windowStats(s.state.Window().Snapshot(points)))
}

// handleSpectrum returns the magnitude spectrum of one channel over the most recent
// points samples. The sample rate is estimated from the window timestamps.
func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := 1
	if v := q.Get("channel"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > sample.NumChannels {
			http.Error(w, "Invalid channel", 400)
			return
		}
		channel = n
	}
	points := s.state.Window().Cap()
	if v := q.Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid points", 400)
			return
		}
		points = clampPoints(n, s.state.Window().Cap())
	}

	snap := s.state.Window().Snapshot(points)
	rate := windowStats(snap).RateHz
	freqs, db := computeSpectrum(snap.Channels[channel-1], rate)
	if freqs == nil {
		freqs, db = []float64{}, []float64{}
	}
	writeJSON(w, http.StatusOK, Spectrum{Channel: channel, RateHz: rate, FreqHz: freqs, DB: db})
}
