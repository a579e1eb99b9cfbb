package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"sync/atomic"
	"time"

	"github.com/scopeview/pkg/frame"
	"github.com/scopeview/pkg/source"
)

// SimStats counts what the simulator has put on the wire.
type SimStats struct {
	Frames    atomic.Uint64
	Corrupted atomic.Uint64
	Echoes    atomic.Uint64
}

// RunSimulator streams a 4-channel test signal as framed UDP datagrams to cfg.Target
// until ctx is cancelled. Channel n carries a sine at n times the base tone, offset in
// phase by n*pi/8, in the 12-bit range 0..4095. Echoed datagrams are read and counted.
func RunSimulator(ctx context.Context, cfg SimulatorConfig, stats *SimStats, logger *slog.Logger) error {
	if stats == nil {
		stats = &SimStats{}
	}
	log := logger.With(slog.String("component", "sim"))

	raddr, err := net.ResolveUDPAddr("udp", cfg.Target)
	if err != nil {
		return fmt.Errorf("%w: %v", source.ErrBadEndpoint, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("simulator dial %s: %w", cfg.Target, err)
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { conn.Close() })

	go drainEchoes(conn, stats)

	const (
		numChannels = 4
		center      = 2048.0
		amplitude   = 2040.0
	)

	// Integer phase accumulator (DDS): the full circle maps onto [0, 2^32).
	var phaseAcc [numChannels]uint32
	var tuningWord, chanOffset [numChannels]uint32
	for c := 0; c < numChannels; c++ {
		tuningWord[c] = uint32(cfg.ToneHz * float64(c+1) / float64(cfg.RateHz) * 4294967296.0)
		chanOffset[c] = uint32(c) * (4294967296 / 16)
	}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	next := func() []byte {
		var f frame.Frame
		for c := range f {
			rads := float64(phaseAcc[c]+chanOffset[c]) * (2.0 * math.Pi / 4294967296.0)
			// Triangular dither of +/- 1 LSB.
			v := center + amplitude*math.Sin(rads) + rng.Float64() - rng.Float64()
			f[c] = uint16(min(max(v, 0), 4095))
			phaseAcc[c] += tuningWord[c]
		}
		enc := frame.Encode(f)
		n := stats.Frames.Add(1)
		if cfg.CorruptEvery > 0 && n%uint64(cfg.CorruptEvery) == 0 {
			// Low bit of ch1's low byte: the checksum no longer matches, and no marker
			// pair can appear since ch2's high byte is at most 0x0F.
			enc[1] ^= 0x01
			stats.Corrupted.Add(1)
		}
		return enc
	}

	// Room for the leading marker pair of the first datagram.
	maxPerDatagram := (source.MaxDatagram - 2) / (frame.PayloadSize + 2)
	tick := max(time.Second/time.Duration(cfg.RateHz), 5*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Info("streaming", slog.String("target", cfg.Target), slog.Int("rate_hz", cfg.RateHz))

	// The leading marker pair synchronizes the receiver before the first frame.
	buf := []byte{frame.Marker, frame.Marker}
	start := time.Now()
	var sent uint64
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped", slog.Uint64("frames", stats.Frames.Load()))
			return nil
		case <-ticker.C:
		}

		due := uint64(time.Since(start).Seconds() * float64(cfg.RateHz))
		for sent < due {
			for k := 0; k < maxPerDatagram && sent < due; k++ {
				buf = append(buf, next()...)
				sent++
			}
			if _, err := conn.Write(buf); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Nothing listening yet; keep generating.
				log.Debug("send failed", slog.Any("error", err))
			}
			buf = buf[:0]
		}
	}
}

func drainEchoes(conn *net.UDPConn, stats *SimStats) {
	buf := make([]byte, source.MaxDatagram)
	for {
		if _, err := conn.Read(buf); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP port unreachable surfaces here while nobody listens.
			continue
		}
		stats.Echoes.Add(1)
	}
}
