// Package recorder appends acquired samples to a file while recording is switched on.
//
// The on/off switch is sampled once per sample: switching on opens (and truncates) the
// target, staying on appends a row, switching off closes the file. Every recording
// interval therefore lands in a freshly created file.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/scopeview/pkg/sample"
)

// Format selects the on-disk layout of a recording.
type Format string

const (
	// FormatCSV writes timestamp_ms,ch1,ch2,ch3,ch4 rows, the layout file replay reads.
	FormatCSV Format = "csv"
	// FormatParquet writes one parquet row per sample.
	FormatParquet Format = "parquet"
)

var (
	ErrNoPath    = errors.New("recording path not set")
	ErrBadFormat = errors.New("unsupported recording format")
)

// Settings is the recording control as read for one sample.
type Settings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Format  Format `yaml:"format" json:"format,omitempty"`
}

// ParseFormat accepts "", "csv" or "parquet"; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadFormat, s)
}

type rowWriter interface {
	WriteSample(sample.Sample) error
	Close() error
}

// Recorder owns at most one open recording. It is driven from a single goroutine.
type Recorder struct {
	log      *slog.Logger
	metadata map[string]string

	w    rowWriter
	path string

	files uint64
	rows  uint64
}

// New returns a closed recorder.
func New(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{log: logger}
}

// SetMetadata replaces the key/value pairs stored in the footer of parquet recordings
// opened from now on.
func (r *Recorder) SetMetadata(kv map[string]string) {
	r.metadata = maps.Clone(kv)
}

// Observe applies one sample under the given settings. The sample that switches
// recording on is not written; the first row is the next sample.
func (r *Recorder) Observe(s Settings, smp sample.Sample) error {
	switch {
	case s.Enabled && r.w == nil:
		return r.open(s)
	case s.Enabled:
		if err := r.w.WriteSample(smp); err != nil {
			return fmt.Errorf("write %s: %w", r.path, err)
		}
		r.rows++
	case r.w != nil:
		return r.Close()
	}
	return nil
}

func (r *Recorder) open(s Settings) error {
	if s.Path == "" {
		return ErrNoPath
	}
	format, err := ParseFormat(string(s.Format))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create recording dir: %w", err)
		}
	}

	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}

	var w rowWriter
	switch format {
	case FormatParquet:
		w = newParquetSink(f, r.metadata)
	default:
		w = newCSVSink(f, strings.HasSuffix(s.Path, ".gz"))
	}

	r.w = w
	r.path = s.Path
	r.files++
	r.log.Info("recording started", slog.String("path", s.Path), slog.String("format", string(format)))
	return nil
}

// Close finishes the open recording, if any. Calling it again is a no-op.
func (r *Recorder) Close() error {
	if r.w == nil {
		return nil
	}
	err := r.w.Close()
	r.log.Info("recording stopped", slog.String("path", r.path), slog.Uint64("rows", r.rows))
	r.w = nil
	r.path = ""
	if err != nil {
		return fmt.Errorf("close recording: %w", err)
	}
	return nil
}

// Active reports whether a recording file is open.
func (r *Recorder) Active() bool { return r.w != nil }

// Path returns the open recording's path, or "" when closed.
func (r *Recorder) Path() string { return r.path }

// Files returns how many recording files have been opened.
func (r *Recorder) Files() uint64 { return r.files }

// Rows returns how many rows have been written across all files.
func (r *Recorder) Rows() uint64 { return r.rows }
