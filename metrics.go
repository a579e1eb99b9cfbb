package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scopeview/pkg/acquire"
)

// registerMetrics exposes loop and window state on reg. Values are read at scrape time,
// so nothing on the acquisition path touches Prometheus.
func registerMetrics(reg prometheus.Registerer, state *ServerState, clients func() int) {
	factory := promauto.With(reg)
	loop := state.Loop()

	run := func(name, help string, value func(acquire.Counters) uint64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "scopeview",
			Subsystem: "run",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(loop.Status().Counters)) })
	}
	run("bytes", "Bytes read from a byte source in the current or last run.", func(c acquire.Counters) uint64 { return c.Bytes })
	run("frames", "Valid frames decoded in the current or last run.", func(c acquire.Counters) uint64 { return c.Frames })
	run("checksum_errors", "Frames dropped for a checksum mismatch in the current or last run.", func(c acquire.Counters) uint64 { return c.ChecksumErrors })
	run("short_frames", "Terminators seen before a full payload in the current or last run.", func(c acquire.Counters) uint64 { return c.ShortFrames })
	run("rows", "Replay rows read in the current or last run.", func(c acquire.Counters) uint64 { return c.Rows })
	run("samples", "Samples appended in the current or last run.", func(c acquire.Counters) uint64 { return c.Samples })
	run("record_errors", "Samples the recorder failed to write in the current or last run.", func(c acquire.Counters) uint64 { return c.RecordErrors })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scopeview",
		Name:      "running",
		Help:      "1 while acquisition is running.",
	}, func() float64 {
		if loop.Status().State == acquire.Running {
			return 1
		}
		return 0
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scopeview",
		Name:      "recording",
		Help:      "1 while a recording file is open.",
	}, func() float64 {
		if loop.Status().Recording {
			return 1
		}
		return 0
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scopeview",
		Subsystem: "window",
		Name:      "samples",
		Help:      "Samples currently held in the sliding window.",
	}, func() float64 { return float64(state.Window().Len()) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "scopeview",
		Subsystem: "window",
		Name:      "appended_total",
		Help:      "Samples appended to the sliding window since start.",
	}, func() float64 { return float64(state.Window().Snapshot(1).Appended) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scopeview",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected WebSocket clients.",
	}, func() float64 { return float64(clients()) })

	reg.MustRegister(collectors.NewGoCollector())
}
