package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/scopeview/pkg/acquire"
	"github.com/scopeview/pkg/recorder"
	"github.com/scopeview/pkg/smooth"
	"github.com/scopeview/pkg/source"
	"github.com/scopeview/pkg/window"
)

// ServerState is the control surface shared by the HTTP API, the CLI and the
// publishers. The loop owns acquisition; this type only holds what the operator chose.
type ServerState struct {
	mu sync.RWMutex

	// Source used by the next Start. Changing it does not affect a running acquisition.
	source source.Config

	loop *acquire.Loop
	log  *slog.Logger

	// runs are children of ctx, so cancelling it stops acquisition.
	ctx context.Context

	stopHooks []func(acquire.Status)
}

// StateView is the JSON form of the current state.
type StateView struct {
	Status   acquire.Status   `json:"status"`
	Source   source.Config    `json:"source"`
	Controls acquire.Controls `json:"controls"`
	Window   struct {
		Len int `json:"len"`
		Cap int `json:"cap"`
	} `json:"window"`
}

// NewServerState wires a loop over a window of the configured capacity.
func NewServerState(ctx context.Context, cfg *Config, logger *slog.Logger) *ServerState {
	s := &ServerState{
		source: cfg.Source.Normalize(),
		log:    logger,
		ctx:    ctx,
	}
	s.loop = acquire.New(acquire.Options{
		Window: window.New(cfg.Window.Capacity),
		Logger: logger,
		OnStop: s.stopped,
	})
	s.loop.SetControls(cfg.controls())
	return s
}

func (s *ServerState) Loop() *acquire.Loop { return s.loop }

func (s *ServerState) Window() *window.Store { return s.loop.Window() }

// OnStop registers fn to be called whenever a run ends, for whatever reason.
func (s *ServerState) OnStop(fn func(acquire.Status)) {
	s.mu.Lock()
	s.stopHooks = append(s.stopHooks, fn)
	s.mu.Unlock()
}

func (s *ServerState) stopped(st acquire.Status) {
	s.mu.RLock()
	hooks := append([]func(acquire.Status){}, s.stopHooks...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(st)
	}
}

func (s *ServerState) Source() source.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// SetSource selects the source for the next run. Selecting a kind clears the settings
// of the other kinds.
func (s *ServerState) SetSource(cfg source.Config) (source.Config, error) {
	cfg = cfg.Normalize()
	if cfg.Serial != nil && cfg.Serial.Baud == 0 {
		serial := *cfg.Serial
		serial.Baud = source.DefaultBaud
		cfg.Serial = &serial
	}
	if err := cfg.Validate(); err != nil {
		return source.Config{}, err
	}
	if cfg.Kind == "" {
		cfg.Kind = cfg.Active()
	}

	s.mu.Lock()
	s.source = cfg
	s.mu.Unlock()
	s.log.Info("source selected", slog.String("source", string(cfg.Kind)))
	return cfg, nil
}

// Start begins acquisition from the selected source.
func (s *ServerState) Start() (string, error) {
	return s.loop.Start(s.ctx, s.Source())
}

func (s *ServerState) Stop() error {
	return s.loop.Stop()
}

// SetSmoothing updates the smoothing switch and factor. Nil leaves a value unchanged.
func (s *ServerState) SetSmoothing(enabled *bool, factor *float64) acquire.Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.loop.Controls()
	if enabled != nil {
		c.Smoothing = *enabled
	}
	if factor != nil {
		c.Factor = smooth.Clamp(*factor)
	}
	s.loop.SetControls(c)
	return c
}

// SetRecording replaces the recording settings. Enabling requires a path.
func (s *ServerState) SetRecording(settings recorder.Settings) (acquire.Controls, error) {
	format, err := recorder.ParseFormat(string(settings.Format))
	if err != nil {
		return acquire.Controls{}, err
	}
	settings.Format = format

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.loop.Controls()
	if settings.Path == "" {
		settings.Path = c.Recording.Path
	}
	if settings.Enabled && settings.Path == "" {
		return acquire.Controls{}, recorder.ErrNoPath
	}
	c.Recording = settings
	s.loop.SetControls(c)
	return c, nil
}

func (s *ServerState) View() StateView {
	var v StateView
	v.Status = s.loop.Status()
	v.Source = s.Source()
	v.Controls = s.loop.Controls()
	v.Window.Len = s.Window().Len()
	v.Window.Cap = s.Window().Cap()
	return v
}
