package source

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.bug.st/serial"
)

const defaultSerialReadTimeout = 100 * time.Millisecond

// SerialSource reads raw bytes from a serial device opened 8N1.
type SerialSource struct {
	port   serial.Port
	device string
	log    *slog.Logger
}

// OpenSerial opens the device at the configured speed. The read timeout lets a blocked
// Read return so the loop can notice a stop request.
func OpenSerial(cfg SerialConfig, logger *slog.Logger) (*SerialSource, error) {
	logger = orDiscard(logger)
	baud := cfg.baud()
	if !ValidBaud(baud) {
		return nil, fmt.Errorf("%w: %d", ErrBadBaud, baud)
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: serial port %s: %w", ErrOpen, cfg.Device, err)
	}

	timeout := defaultSerialReadTimeout
	if cfg.ReadTimeoutMS > 0 {
		timeout = time.Duration(cfg.ReadTimeoutMS) * time.Millisecond
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %w", ErrOpen, cfg.Device, err)
	}

	logger.Info("serial port opened", slog.String("device", cfg.Device), slog.Int("baud", baud))
	return &SerialSource{port: port, device: cfg.Device, log: logger}, nil
}

// Read blocks until at least one byte arrives or the read timeout fires, in which case
// it returns (0, nil).
func (s *SerialSource) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialSource) Close() error {
	return s.port.Close()
}

func (s *SerialSource) Kind() Kind { return KindSerial }

// ListPorts enumerates the serial ports present on the system, sorted by name.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}
