package source

import (
	"context"
	"time"
)

// Pacer reproduces the spacing between recorded rows. The first row is released
// immediately; each later row waits for the timestamp delta to its predecessor.
// Out-of-order or repeated timestamps are clamped to no wait.
type Pacer struct {
	// Speed divides every delay. Zero or negative means real time.
	Speed float64
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	prev    int64
	started bool
}

// Delay returns how long to wait before releasing a row stamped ts and records ts as
// the new reference.
func (p *Pacer) Delay(ts int64) time.Duration {
	if !p.started {
		p.started = true
		p.prev = ts
		return 0
	}
	delta := ts - p.prev
	p.prev = ts
	if delta <= 0 {
		return 0
	}
	d := time.Duration(delta) * time.Millisecond
	if p.Speed > 0 && p.Speed != 1 {
		d = time.Duration(float64(d) / p.Speed)
	}
	return d
}

// Wait blocks for the delay owed before the row stamped ts.
func (p *Pacer) Wait(ctx context.Context, ts int64) error {
	d := p.Delay(ts)
	if d <= 0 {
		return ctx.Err()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, d)
}

// Reset forgets the previous timestamp so the next row is released immediately.
func (p *Pacer) Reset() {
	p.started = false
	p.prev = 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
