// Package acquire runs the acquisition pipeline: it pulls from the active source,
// decodes frames (or replays rows), smooths the channels, appends to the sliding window
// and feeds the recorder. One run is active at a time; the window outlives runs.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scopeview/pkg/frame"
	"github.com/scopeview/pkg/recorder"
	"github.com/scopeview/pkg/sample"
	"github.com/scopeview/pkg/smooth"
	"github.com/scopeview/pkg/source"
	"github.com/scopeview/pkg/window"
)

// State of the loop.
type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrRunning    = errors.New("acquisition already running")
	ErrNotRunning = errors.New("acquisition not running")
)

// Controls are the runtime switches read once per sample.
type Controls struct {
	Smoothing bool              `json:"smoothing"`
	Factor    float64           `json:"factor"`
	Recording recorder.Settings `json:"recording"`
}

// Options configures a Loop. Zero values pick sensible defaults.
type Options struct {
	// Window receives every sample. Nil creates a store of window.DefaultCapacity.
	Window *window.Store
	Logger *slog.Logger
	// Now is the clock used for sample timestamps.
	Now func() time.Time
	// Sleep overrides the replay pacer's wait, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// ReadSize is the chunk size for byte sources.
	ReadSize int
	// OnStop is called from the acquisition goroutine once a run has fully stopped.
	OnStop func(Status)
}

// Counters are per-run totals.
type Counters struct {
	Bytes          uint64 `json:"bytes"`
	Frames         uint64 `json:"frames"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	ShortFrames    uint64 `json:"short_frames"`
	Rows           uint64 `json:"rows"`
	Samples        uint64 `json:"samples"`
	RecordErrors   uint64 `json:"record_errors"`
}

// Status is a point-in-time view of the loop.
type Status struct {
	State     State       `json:"-"`
	StateName string      `json:"state"`
	RunID     string      `json:"run_id,omitempty"`
	Source    source.Kind `json:"source,omitempty"`
	Started   time.Time   `json:"started,omitzero"`
	LastError string      `json:"last_error,omitempty"`
	Recording bool        `json:"recording"`
	Counters
}

type counters struct {
	bytes, frames, checksum, short, rows, samples, recordErrors atomic.Uint64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Uint64{&c.bytes, &c.frames, &c.checksum, &c.short, &c.rows, &c.samples, &c.recordErrors} {
		v.Store(0)
	}
}

func (c *counters) snapshot() Counters {
	return Counters{
		Bytes:          c.bytes.Load(),
		Frames:         c.frames.Load(),
		ChecksumErrors: c.checksum.Load(),
		ShortFrames:    c.short.Load(),
		Rows:           c.rows.Load(),
		Samples:        c.samples.Load(),
		RecordErrors:   c.recordErrors.Load(),
	}
}

// Loop owns the source, channel state and recorder of the active run.
type Loop struct {
	opts Options
	log  *slog.Logger
	win  *window.Store

	controls  atomic.Pointer[Controls]
	recording atomic.Bool

	mu      sync.Mutex
	state   State
	runID   string
	kind    source.Kind
	started time.Time
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}

	// Touched only by the acquisition goroutine.
	smoother smooth.Smoother
	rec      *recorder.Recorder

	counters counters
}

// New returns an idle loop.
func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Window == nil {
		opts.Window = window.New(window.DefaultCapacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = source.MaxDatagram
	}
	l := &Loop{
		opts: opts,
		log:  opts.Logger,
		win:  opts.Window,
		rec:  recorder.New(opts.Logger),
		done: closedChan(),
	}
	l.controls.Store(&Controls{})
	return l
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Window returns the sample store fed by this loop.
func (l *Loop) Window() *window.Store { return l.win }

// SetControls replaces the runtime controls; the next sample sees the new values.
func (l *Loop) SetControls(c Controls) {
	c.Factor = smooth.Clamp(c.Factor)
	l.controls.Store(&c)
}

// Controls returns the current runtime controls.
func (l *Loop) Controls() Controls { return *l.controls.Load() }

// Start opens the source described by cfg and spawns the acquisition goroutine. On
// error nothing is left open and the loop stays idle. It returns the new run's ID.
// Cancelling ctx stops the run just like Stop.
func (l *Loop) Start(ctx context.Context, cfg source.Config) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		return "", ErrRunning
	}
	src, err := source.Open(cfg, l.log)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(ctx)
	// Closing a byte source is what unblocks a pending read once the run is cancelled.
	// Replays see the cancellation between rows and are closed by the run goroutine only.
	if _, ok := src.(source.ByteSource); ok {
		context.AfterFunc(runCtx, func() { src.Close() })
	}

	l.runID = uuid.NewString()
	l.kind = src.Kind()
	l.started = l.opts.Now()
	l.lastErr = nil
	l.state = Running
	l.cancel = cancel
	l.done = make(chan struct{})
	l.counters.reset()
	l.rec.SetMetadata(map[string]string{"run_id": l.runID, "source": string(l.kind)})

	l.log.Info("acquisition started", slog.String("run_id", l.runID), slog.String("source", string(l.kind)))
	go l.run(runCtx, src, l.runID, l.done)
	return l.runID, nil
}

// Stop cancels the active run and waits until its handles are released.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.state == Idle {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.state = Stopping
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Done returns a channel closed when the current run ends. When idle it is already closed.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Status reports the loop state and the counters of the current or last run.
func (l *Loop) Status() Status {
	l.mu.Lock()
	st := Status{
		State:     l.state,
		StateName: l.state.String(),
		RunID:     l.runID,
		Source:    l.kind,
		Started:   l.started,
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	l.mu.Unlock()
	st.Recording = l.recording.Load()
	st.Counters = l.counters.snapshot()
	return st
}

// run is the acquisition goroutine. It owns src, the smoother and the recorder until
// it returns.
func (l *Loop) run(ctx context.Context, src source.Source, runID string, done chan struct{}) {
	log := l.log.With(slog.String("run_id", runID))

	p := &pipeline{loop: l, log: log}
	var err error
	switch s := src.(type) {
	case source.RowSource:
		err = p.replay(ctx, s)
	case source.ByteSource:
		err = p.stream(ctx, s)
	default:
		err = fmt.Errorf("source %T yields neither bytes nor rows", src)
	}

	// Teardown is best effort: close errors are logged, never surfaced.
	if cerr := src.Close(); cerr != nil {
		log.Debug("source close", slog.Any("error", cerr))
	}
	if cerr := l.rec.Close(); cerr != nil {
		log.Warn("recording close", slog.Any("error", cerr))
	}
	l.recording.Store(false)

	l.mu.Lock()
	l.cancel()
	l.lastErr = err
	l.state = Idle
	l.mu.Unlock()

	if err != nil {
		log.Error("acquisition stopped on error", slog.Any("error", err))
	} else {
		log.Info("acquisition stopped", slog.Uint64("samples", l.counters.samples.Load()))
	}

	close(done)
	if l.opts.OnStop != nil {
		l.opts.OnStop(l.Status())
	}
}

// pipeline carries the per-run state that follows one sample from source to sinks.
type pipeline struct {
	loop  *Loop
	log   *slog.Logger
	first time.Time
}

func (p *pipeline) stream(ctx context.Context, src source.ByteSource) error {
	l := p.loop
	dec := frame.NewDecoder(p.log)
	buf := make([]byte, l.opts.ReadSize)
	emit := func(f frame.Frame) {
		p.process(sample.Channels{float64(f[0]), float64(f[1]), float64(f[2]), float64(f[3])})
	}

	for ctx.Err() == nil {
		n, err := src.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				p.log.Info("source closed by peer")
				return nil
			}
			return fmt.Errorf("read %s: %w", src.Kind(), err)
		}
		if n == 0 {
			continue
		}
		l.counters.bytes.Add(uint64(n))
		dec.Feed(buf[:n], emit)
		l.counters.frames.Store(dec.Frames())
		l.counters.checksum.Store(dec.ChecksumErrors())
		l.counters.short.Store(dec.ShortFrames())
	}
	return nil
}

func (p *pipeline) replay(ctx context.Context, src source.RowSource) error {
	l := p.loop
	pacer := source.Pacer{Sleep: l.opts.Sleep}
	if fs, ok := src.(interface{ Speed() float64 }); ok {
		pacer.Speed = fs.Speed()
	}

	for {
		row, err := src.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				p.log.Info("end of replay file", slog.Uint64("rows", l.counters.rows.Load()))
				return nil
			}
			return err
		}
		if err := pacer.Wait(ctx, row.TimestampMS); err != nil {
			return nil
		}
		l.counters.rows.Add(1)
		p.process(sample.Channels{float64(row.Ch[0]), float64(row.Ch[1]), float64(row.Ch[2]), float64(row.Ch[3])})
	}
}

func (p *pipeline) process(raw sample.Channels) {
	l := p.loop
	now := l.opts.Now()
	if p.first.IsZero() {
		p.first = now
	}
	c := l.controls.Load()

	smp := sample.Sample{
		TimestampMS: now.Sub(p.first).Milliseconds(),
		Ch:          l.smoother.Apply(raw, c.Smoothing, c.Factor),
	}
	l.win.Append(smp)
	l.counters.samples.Add(1)

	if err := l.rec.Observe(c.Recording, smp); err != nil {
		// Logged on the first failure and then every 1000th.
		if n := l.counters.recordErrors.Add(1); n == 1 || n%1000 == 0 {
			p.log.Warn("recording failed", slog.Any("error", err), slog.Uint64("failures", n))
		}
	}
	l.recording.Store(l.rec.Active())
}
