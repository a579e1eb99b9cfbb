package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/scopeview/pkg/acquire"
	"github.com/scopeview/pkg/source"
)

// runCLI acquires from the selected source, printing a status table every second,
// until ctx is cancelled or the source runs dry.
func runCLI(ctx context.Context, state *ServerState, out io.Writer, logger *slog.Logger) error {
	runID, err := state.Start()
	if err != nil {
		return fmt.Errorf("start acquisition: %w", err)
	}
	logger.Info("acquiring, press Ctrl-C to stop", slog.String("run_id", runID))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	done := state.Loop().Done()

	for {
		select {
		case <-ctx.Done():
			if err := state.Stop(); err != nil && !errors.Is(err, acquire.ErrNotRunning) {
				return err
			}
			printStatus(out, state)
			return nil
		case <-done:
			printStatus(out, state)
			if msg := state.Loop().Status().LastError; msg != "" {
				return errors.New(msg)
			}
			return nil
		case <-ticker.C:
			printStatus(out, state)
		}
	}
}

// printPorts writes the serial ports and supported speeds.
func printPorts(out io.Writer) error {
	ports, err := source.ListPorts()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, portsTable(ports))
	return nil
}

func printStatus(out io.Writer, state *ServerState) {
	fmt.Fprintln(out, statusTable(state.Loop().Status(), windowStats(state.Window().Snapshot(0))))
}
