package source

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacerDelays(t *testing.T) {
	var p Pacer
	steps := []struct {
		ts   int64
		want time.Duration
	}{
		{0, 0},
		{100, 100 * time.Millisecond},
		{150, 50 * time.Millisecond},
		{150, 0}, // duplicate
		{120, 0}, // out of order is clamped
		{200, 80 * time.Millisecond},
	}
	for i, s := range steps {
		if got := p.Delay(s.ts); got != s.want {
			t.Errorf("Step %d (ts=%d): got %v, want %v", i, s.ts, got, s.want)
		}
	}
}

func TestPacerFirstRowWithNonZeroTimestamp(t *testing.T) {
	var p Pacer
	if d := p.Delay(5000); d != 0 {
		t.Fatalf("First row should not wait, got %v", d)
	}
	if d := p.Delay(5010); d != 10*time.Millisecond {
		t.Fatalf("Expected 10ms, got %v", d)
	}
}

func TestPacerSpeed(t *testing.T) {
	p := Pacer{Speed: 4}
	p.Delay(0)
	if d := p.Delay(100); d != 25*time.Millisecond {
		t.Fatalf("Expected 25ms at 4x, got %v", d)
	}
}

func TestPacerWaitUsesSleeper(t *testing.T) {
	var slept []time.Duration
	p := Pacer{Sleep: func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}}
	ctx := context.Background()
	for _, ts := range []int64{0, 100} {
		if err := p.Wait(ctx, ts); err != nil {
			t.Fatal(err)
		}
	}
	if len(slept) != 1 || slept[0] != 100*time.Millisecond {
		t.Fatalf("Expected a single 100ms sleep, got %v", slept)
	}
}

func TestPacerWaitCancelled(t *testing.T) {
	var p Pacer
	p.Delay(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := p.Wait(ctx, 60_000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("Wait ignored cancellation")
	}
}
