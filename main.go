package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/scopeview/pkg/recorder"
	"github.com/scopeview/pkg/source"
)

// baudFlag accepts plain rates and the k shorthand (9k6, 115.2k) and checks them
// against the supported set.
type baudFlag int

func (b *baudFlag) String() string {
	return strconv.Itoa(int(*b))
}

func (b *baudFlag) Set(value string) error {
	value = strings.TrimSpace(strings.ToLower(value))
	rate, err := parseBaud(value)
	if err != nil {
		return err
	}
	if !source.ValidBaud(rate) {
		return fmt.Errorf("unsupported baud rate %d (supported: %v)", rate, source.BaudRates)
	}
	*b = baudFlag(rate)
	return nil
}

func parseBaud(value string) (int, error) {
	head, tail, ok := strings.Cut(value, "k")
	if !ok {
		v, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid baud format: %s", value)
		}
		return v, nil
	}
	// 9k6 means 9.6k; 115.2k has nothing after the k.
	num := head
	if tail != "" {
		if strings.Contains(head, ".") {
			return 0, fmt.Errorf("invalid baud format: %s", value)
		}
		num = head + "." + tail
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid baud format: %s", value)
	}
	return int(f*1000 + 0.5), nil
}

func main() {
	configPath := flag.String("c", "", "YAML config file")

	// Source selection; each overrides the config file's source section
	serialDev := flag.String("serial", "", "Serial device to read frames from")
	baud := baudFlag(source.DefaultBaud)
	flag.Var(&baud, "baud", "Serial baud rate (e.g. 9600, 115200, 9k6)")
	udpEndpoint := flag.String("udp", "", "Local UDP endpoint host:port to receive frames on")
	replayFile := flag.String("file", "", "Recording to replay (csv, optionally .gz)")
	speed := flag.Float64("speed", 1, "Replay speed multiplier")

	recordPath := flag.String("record", "", "Record samples to this file from the start")
	recordFormat := flag.String("format", "csv", "Recording format: csv or parquet")

	// Server-specific flags
	isServer := flag.Bool("server", false, "Run the HTTP/WebSocket server")
	port := flag.Int("p", 8080, "Port to listen on (server mode only)")

	listPorts := flag.Bool("list-ports", false, "List serial ports and baud rates, then exit")

	// Simulation flags
	isSim := flag.Bool("sim", false, "Run the built-in UDP signal generator")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "  CLI Mode:    scopeview -udp 0.0.0.0:5005 | -serial /dev/ttyUSB0 -baud 115200 | -file rec.csv")
		fmt.Fprintln(os.Stderr, "  Server Mode: scopeview -server [-c config.yaml] [options]")
		fmt.Fprintln(os.Stderr, "  Sim Mode:    scopeview -sim [-server] [options]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfig(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	switch {
	case *serialDev != "":
		cfg.Source = source.Serial(*serialDev, int(baud))
	case *udpEndpoint != "":
		cfg.Source = source.UDP(*udpEndpoint)
	case *replayFile != "":
		cfg.Source = source.File(*replayFile)
		cfg.Source.File.Speed = *speed
	case *isSim && cfg.Source.Active() == "":
		// Listen where the generator sends.
		_, simPort, err := source.ParseEndpoint(cfg.Simulator.Target)
		if err == nil {
			cfg.Source = source.UDP(fmt.Sprintf("127.0.0.1:%d", simPort))
		}
	}
	if set["baud"] && cfg.Source.Serial != nil {
		cfg.Source.Serial.Baud = int(baud)
	}
	if *recordPath != "" {
		format, err := recorder.ParseFormat(*recordFormat)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cfg.Recording = recorder.Settings{Enabled: true, Path: *recordPath, Format: format}
	}
	if set["p"] {
		cfg.Server.Listen = fmt.Sprintf(":%d", *port)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	logger, logCloser, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *isSim {
		cfg.Server.AutoStart = true
		go func() {
			if err := RunSimulator(ctx, cfg.Simulator, nil, logger); err != nil {
				logger.Error("simulator failed", slog.Any("error", err))
			}
		}()
	}

	state := NewServerState(ctx, cfg, logger)

	if *isServer {
		err = runServer(ctx, cfg, state, logger)
	} else {
		err = runCLI(ctx, state, os.Stdout, logger)
	}
	if err != nil {
		logger.Error("exiting", slog.Any("error", err))
		stop()
		logCloser.Close()
		os.Exit(1)
	}
}
