// Package source opens the byte and row producers that feed an acquisition run: a
// serial device, a UDP socket that echoes every datagram, or a recorded file replayed
// with its original timing.
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
)

// Kind names a source variant.
type Kind string

const (
	KindSerial Kind = "serial"
	KindUDP    Kind = "udp"
	KindFile   Kind = "file"
)

var (
	ErrNoSource        = errors.New("no source selected")
	ErrMultipleSources = errors.New("more than one source selected")
	ErrKindMismatch    = errors.New("source kind does not match its settings")
	ErrBadEndpoint     = errors.New("malformed udp endpoint")
	ErrBadBaud         = errors.New("unsupported baud rate")
	ErrOpen            = errors.New("cannot open source")
	ErrBadRow          = errors.New("malformed replay row")
)

// BaudRates is the set of serial speeds a device can be opened at.
var BaudRates = []int{110, 300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 38400, 57600, 115200, 128000}

// DefaultBaud is preselected when no speed is configured.
const DefaultBaud = 9600

// SerialConfig selects a serial device.
type SerialConfig struct {
	Device        string `yaml:"device" json:"device"`
	Baud          int    `yaml:"baud" json:"baud"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms" json:"read_timeout_ms,omitempty"`
}

// UDPConfig selects a local "host:port" to bind.
type UDPConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// FileConfig selects a recorded file to replay.
type FileConfig struct {
	Path string `yaml:"path" json:"path"`
	// Speed scales playback; 2 replays twice as fast. Zero means real time.
	Speed float64 `yaml:"speed" json:"speed,omitempty"`
}

// Config is a tagged variant: exactly one of Serial, UDP or File is set, and Kind names it.
type Config struct {
	Kind   Kind          `yaml:"kind" json:"kind"`
	Serial *SerialConfig `yaml:"serial,omitempty" json:"serial,omitempty"`
	UDP    *UDPConfig    `yaml:"udp,omitempty" json:"udp,omitempty"`
	File   *FileConfig   `yaml:"file,omitempty" json:"file,omitempty"`
}

// Serial returns a config with only the serial variant set.
func Serial(device string, baud int) Config {
	return Config{Kind: KindSerial, Serial: &SerialConfig{Device: device, Baud: baud}}
}

// UDP returns a config with only the UDP variant set.
func UDP(endpoint string) Config {
	return Config{Kind: KindUDP, UDP: &UDPConfig{Endpoint: endpoint}}
}

// File returns a config with only the file variant set.
func File(path string) Config {
	return Config{Kind: KindFile, File: &FileConfig{Path: path}}
}

// Normalize drops the variants that Kind does not name, so switching kind clears the
// settings of the others. With Kind empty the config is returned unchanged.
func (c Config) Normalize() Config {
	switch c.Kind {
	case KindSerial:
		return Config{Kind: c.Kind, Serial: c.Serial}
	case KindUDP:
		return Config{Kind: c.Kind, UDP: c.UDP}
	case KindFile:
		return Config{Kind: c.Kind, File: c.File}
	}
	return c
}

// Active returns the kind of the populated variant, or "" when none is set.
func (c Config) Active() Kind {
	switch {
	case c.Serial != nil:
		return KindSerial
	case c.UDP != nil:
		return KindUDP
	case c.File != nil:
		return KindFile
	}
	return ""
}

// Validate checks that exactly one usable variant is present.
func (c Config) Validate() error {
	set := 0
	for _, p := range []bool{c.Serial != nil, c.UDP != nil, c.File != nil} {
		if p {
			set++
		}
	}
	switch {
	case set == 0:
		return ErrNoSource
	case set > 1:
		return ErrMultipleSources
	}
	if c.Kind != "" && c.Kind != c.Active() {
		return fmt.Errorf("%w: kind %q with %s settings", ErrKindMismatch, c.Kind, c.Active())
	}

	switch {
	case c.Serial != nil:
		if c.Serial.Device == "" {
			return fmt.Errorf("%w: serial device not set", ErrNoSource)
		}
		if !ValidBaud(c.Serial.baud()) {
			return fmt.Errorf("%w: %d", ErrBadBaud, c.Serial.Baud)
		}
	case c.UDP != nil:
		if _, _, err := ParseEndpoint(c.UDP.Endpoint); err != nil {
			return err
		}
	case c.File != nil:
		if c.File.Path == "" {
			return fmt.Errorf("%w: replay file not set", ErrNoSource)
		}
		if c.File.Speed < 0 {
			return fmt.Errorf("replay speed must not be negative: %v", c.File.Speed)
		}
	}
	return nil
}

func (s *SerialConfig) baud() int {
	if s.Baud == 0 {
		return DefaultBaud
	}
	return s.Baud
}

// ValidBaud reports whether baud is one of BaudRates.
func ValidBaud(baud int) bool {
	return slices.Contains(BaudRates, baud)
}

// ParseEndpoint splits "host:port" and checks the port range.
func ParseEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrBadEndpoint, endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: %q: bad port", ErrBadEndpoint, endpoint)
	}
	return host, port, nil
}

// Source is an open input owned by one acquisition run.
type Source interface {
	io.Closer
	Kind() Kind
}

// ByteSource yields raw chunks to be run through the frame decoder. Read may return
// (0, nil) when its own timeout fires so the caller can check for cancellation.
type ByteSource interface {
	Source
	Read(p []byte) (int, error)
}

// Row is one line of a recorded file.
type Row struct {
	TimestampMS int64
	Ch          [4]int64
}

// RowSource yields pre-parsed rows and returns io.EOF after the last one.
type RowSource interface {
	Source
	Next() (Row, error)
}

// Open validates cfg and opens the selected variant. Configuration problems wrap
// ErrNoSource, ErrMultipleSources, ErrBadBaud or ErrBadEndpoint; open failures wrap ErrOpen.
func Open(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = orDiscard(logger)

	var (
		src Source
		err error
	)
	switch {
	case cfg.Serial != nil:
		src, err = openAs(OpenSerial(*cfg.Serial, logger))
	case cfg.UDP != nil:
		src, err = openAs(OpenUDP(cfg.UDP.Endpoint, logger))
	default:
		var fs *FileSource
		if fs, err = OpenFile(cfg.File.Path, logger); err == nil {
			fs.speed = cfg.File.Speed
			src = fs
		}
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// openAs keeps a failed open from leaking a typed nil pointer into the interface.
func openAs[T Source](s T, err error) (Source, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
