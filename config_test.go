package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scopeview/pkg/recorder"
	"github.com/scopeview/pkg/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Window.Capacity != 500 || cfg.Server.DefaultPoints != 500 || cfg.Server.RenderIntervalMS != 30 {
		t.Errorf("Unexpected defaults: %+v %+v", cfg.Window, cfg.Server)
	}
	if cfg.Smoothing.Factor != defaultSmoothingFactor {
		t.Errorf("Expected default factor %v, got %v", defaultSmoothingFactor, cfg.Smoothing.Factor)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
source:
  kind: serial
  serial:
    device: /dev/ttyUSB0
window:
  capacity: 200
smoothing:
  enabled: true
recording:
  path: data/run.csv.gz
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen: got %q", cfg.Server.Listen)
	}
	if cfg.Source.Active() != source.KindSerial || cfg.Source.Serial.Baud != source.DefaultBaud {
		t.Errorf("Expected serial source at the default baud, got %+v", cfg.Source.Serial)
	}
	if cfg.Server.DefaultPoints != 200 {
		t.Errorf("default_points should follow the capacity, got %d", cfg.Server.DefaultPoints)
	}
	if !cfg.Smoothing.Enabled || cfg.Smoothing.Factor != defaultSmoothingFactor {
		t.Errorf("Expected smoothing on with the default factor, got %+v", cfg.Smoothing)
	}
	if cfg.Recording.Format != recorder.FormatCSV || cfg.Recording.Enabled {
		t.Errorf("Unexpected recording settings: %+v", cfg.Recording)
	}
}

func TestLoadConfigZeroFactorKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "smoothing:\n  factor: 0\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Smoothing.Factor != 0 {
		t.Errorf("An explicit zero factor must survive defaults, got %v", cfg.Smoothing.Factor)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"factor", "smoothing:\n  factor: 1.5\n", "smoothing.factor"},
		{"points", "window:\n  capacity: 10\nserver:\n  default_points: 20\n", "default_points"},
		{"two sources", "source:\n  udp:\n    endpoint: 0.0.0.0:5005\n  file:\n    path: x.csv\n", "more than one source"},
		{"endpoint", "source:\n  kind: udp\n  udp:\n    endpoint: nope\n", "malformed udp endpoint"},
		{"baud", "source:\n  serial:\n    device: /dev/ttyS0\n    baud: 1234\n", "unsupported baud"},
		{"format", "recording:\n  format: xml\n", "unsupported recording format"},
		{"record without path", "recording:\n  enabled: true\n", "path not set"},
		{"log format", "logging:\n  format: xml\n", "logging.format"},
		{"mqtt broker", "mqtt:\n  enabled: true\n", "mqtt.broker"},
		{"yaml", "server: [\n", "failed to parse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}

func TestBaudFlag(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"9600", 9600, true},
		{"115200", 115200, true},
		{"9k6", 9600, true},
		{"115.2k", 115200, true},
		{"128K", 128000, true},
		{"14k4", 14400, true},
		{"1234", 0, false},
		{"fast", 0, false},
		{"1.2k3", 0, false},
	}
	for _, tc := range cases {
		var b baudFlag
		err := b.Set(tc.in)
		if tc.ok {
			if err != nil || int(b) != tc.want {
				t.Errorf("Set(%q) = %d, %v; want %d", tc.in, b, err, tc.want)
			}
		} else if err == nil {
			t.Errorf("Set(%q) should fail, got %d", tc.in, b)
		}
	}
}

func TestLoggerFormats(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		path := filepath.Join(t.TempDir(), "logs", "scopeview.log")
		logger, closer, err := newLogger(LoggingConfig{Level: "debug", Format: format, File: path})
		if err != nil {
			t.Fatalf("%s: newLogger failed: %v", format, err)
		}
		logger.Debug("hello", "k", 1)
		closer.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("%s: log file not written: %v", format, err)
		}
		if !strings.Contains(string(data), "hello") {
			t.Errorf("%s: expected message in log file, got %q", format, data)
		}
		if format == "json" && !strings.Contains(string(data), `"ts":`) {
			t.Errorf("json: expected ts key, got %q", data)
		}
	}
	if _, _, err := newLogger(LoggingConfig{Format: "xml"}); err == nil {
		t.Error("Expected an unsupported format to fail")
	}
}
