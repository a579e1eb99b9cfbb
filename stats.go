package main

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/scopeview/pkg/window"
)

// ChannelStats summarizes one channel of a window snapshot.
type ChannelStats struct {
	Channel int     `json:"channel"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Last    float64 `json:"last"`
}

// WindowStats summarizes a window snapshot.
type WindowStats struct {
	Samples  int            `json:"samples"`
	SpanMS   int64          `json:"span_ms"`
	RateHz   float64        `json:"rate_hz"`
	Appended uint64         `json:"appended"`
	Channels []ChannelStats `json:"channels"`
}

func windowStats(snap window.Snapshot) WindowStats {
	n := snap.Len()
	ws := WindowStats{
		Samples:  n,
		Appended: snap.Appended,
		Channels: make([]ChannelStats, 0, len(snap.Channels)),
	}
	if n == 0 {
		return ws
	}

	ws.SpanMS = snap.Timestamps[n-1] - snap.Timestamps[0]
	if ws.SpanMS > 0 {
		ws.RateHz = float64(n-1) * 1000 / float64(ws.SpanMS)
	}

	for i, series := range snap.Channels {
		cs := ChannelStats{
			Channel: i + 1,
			Min:     floats.Min(series),
			Max:     floats.Max(series),
			Last:    series[n-1],
		}
		if n > 1 {
			cs.Mean, cs.StdDev = stat.MeanStdDev(series, nil)
		} else {
			cs.Mean = series[0]
		}
		ws.Channels = append(ws.Channels, cs)
	}
	return ws
}
