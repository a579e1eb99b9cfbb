package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scopeview/pkg/acquire"
	"github.com/scopeview/pkg/sample"
)

type Client struct {
	conn *websocket.Conn
	send chan interface{}

	// points is the view length this client asked for.
	points atomic.Int64

	// Written only by the broadcaster.
	lastAppended uint64
	lastLen      int
	primed       bool
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		var err error
		switch v := msg.(type) {
		case []byte:
			err = c.conn.WriteMessage(websocket.BinaryMessage, v)
		default:
			err = c.conn.WriteJSON(v)
		}
		if err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

type hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*Client]bool)}
}

func (h *hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastJSON queues msg for every client; slow clients miss it.
func (h *hub) broadcastJSON(msg interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// windowMessage carries the most recent samples to a renderer.
type windowMessage struct {
	Type       string                        `json:"type"`
	RunID      string                        `json:"run_id,omitempty"`
	Timestamps []int64                       `json:"timestamps"`
	Channels   [sample.NumChannels][]float64 `json:"channels"`
}

type statusMessage struct {
	Type   string         `json:"type"`
	Status acquire.Status `json:"status"`
}

// Server exposes a ServerState over HTTP and WebSocket.
type Server struct {
	cfg   *Config
	state *ServerState
	hub   *hub
	log   *slog.Logger

	registry *prometheus.Registry
	upgrader websocket.Upgrader
}

func NewServer(cfg *Config, state *ServerState, logger *slog.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		state: state,
		hub:   newHub(),
		log:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
	if cfg.Prometheus.Enabled {
		s.registry = prometheus.NewRegistry()
		registerMetrics(s.registry, state, s.hub.count)
	}
	state.OnStop(func(st acquire.Status) {
		s.hub.broadcastJSON(statusMessage{Type: "status", Status: st})
	})
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/source", s.handleSource)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/smoothing", s.handleSmoothing)
	mux.HandleFunc("/api/window/clear", s.handleWindowClear)
	mux.HandleFunc("/api/ports", s.handlePorts)
	mux.HandleFunc("/api/bauds", s.handleBauds)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/spectrum", s.handleSpectrum)

	// Recording endpoints
	mux.HandleFunc("/api/record", s.handleRecord)

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := &Client{conn: conn, send: make(chan interface{}, 16)}
	client.points.Store(int64(s.cfg.Server.DefaultPoints))
	s.hub.add(client)
	s.log.Info("client connected", slog.String("remote", r.RemoteAddr))

	go client.writePump()

	defer func() {
		s.hub.remove(client) // stops writePump
		s.log.Info("client disconnected", slog.String("remote", r.RemoteAddr))
	}()

	// Read pump: clients only ever change their view length.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req struct {
			Points *int `json:"points"`
		}
		if err := json.Unmarshal(msg, &req); err != nil || req.Points == nil {
			continue
		}
		client.points.Store(int64(clampPoints(*req.Points, s.state.Window().Cap())))
	}
}

func clampPoints(n, capacity int) int {
	switch {
	case n < 1:
		return 1
	case n > capacity:
		return capacity
	}
	return n
}

// broadcastWindow sends each client its most recent points, skipping clients whose
// view has not changed since the last tick.
func (s *Server) broadcastWindow() {
	runID := s.state.Loop().Status().RunID
	store := s.state.Window()

	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	for client := range s.hub.clients {
		snap := store.Snapshot(int(client.points.Load()))
		if client.primed && snap.Appended == client.lastAppended && snap.Len() == client.lastLen {
			continue
		}
		msg := windowMessage{Type: "window", RunID: runID, Timestamps: snap.Timestamps, Channels: snap.Channels}
		select {
		case client.send <- msg:
			client.primed = true
			client.lastAppended = snap.Appended
			client.lastLen = snap.Len()
		default:
		}
	}
}

func (s *Server) runBroadcaster(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.Server.RenderIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastWindow()
		}
	}
}

// runServer serves the API until ctx is cancelled, then stops acquisition.
func runServer(ctx context.Context, cfg *Config, state *ServerState, logger *slog.Logger) error {
	s := NewServer(cfg, state, logger)
	go s.runBroadcaster(ctx)

	if cfg.MQTT.Enabled {
		pub, err := NewMQTTPublisher(cfg.MQTT, state, logger)
		if err != nil {
			logger.Error("mqtt disabled", slog.Any("error", err))
		} else {
			go pub.Run(ctx)
		}
	}

	if cfg.Server.AutoStart {
		if _, err := state.Start(); err != nil {
			logger.Error("auto start failed", slog.Any("error", err))
		}
	}

	srv := &http.Server{Addr: cfg.Server.Listen, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("server listening", slog.String("addr", cfg.Server.Listen))

	select {
	case err := <-errc:
		state.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	err := srv.Shutdown(shutdownCtx)
	if stopErr := state.Stop(); stopErr != nil && !errors.Is(stopErr, acquire.ErrNotRunning) {
		logger.Warn("stop on shutdown", slog.Any("error", stopErr))
	}
	logger.Info("server stopped")
	return err
}
