package window

import (
	"sync"
	"testing"

	"github.com/scopeview/pkg/sample"
)

func mk(i int) sample.Sample {
	f := float64(i)
	return sample.Sample{TimestampMS: int64(i), Ch: sample.Channels{f, f * 2, f * 3, f * 4}}
}

func TestLengthBelowCapacity(t *testing.T) {
	s := New(0)
	for i := 1; i <= 123; i++ {
		s.Append(mk(i))
	}
	if s.Len() != 123 {
		t.Fatalf("Expected length 123, got %d", s.Len())
	}
	snap := s.Snapshot(0)
	if snap.Timestamps[0] != 1 || snap.Timestamps[122] != 123 {
		t.Errorf("Unexpected order: first=%d last=%d", snap.Timestamps[0], snap.Timestamps[122])
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	for _, n := range []int{500, 501, 999, 1234} {
		s := New(DefaultCapacity)
		for i := 1; i <= n; i++ {
			s.Append(mk(i))
		}
		if s.Len() != 500 {
			t.Fatalf("N=%d: expected length 500, got %d", n, s.Len())
		}
		snap := s.Snapshot(0)
		if got, want := snap.Timestamps[0], int64(n-499); got != want {
			t.Errorf("N=%d: oldest surviving sample is #%d, want #%d", n, got, want)
		}
		if snap.Timestamps[499] != int64(n) {
			t.Errorf("N=%d: newest is #%d", n, snap.Timestamps[499])
		}
		for k := 0; k < snap.Len(); k++ {
			ts := float64(snap.Timestamps[k])
			if snap.Channels[0][k] != ts || snap.Channels[3][k] != ts*4 {
				t.Fatalf("N=%d: series misaligned at %d", n, k)
			}
		}
	}
}

func TestSnapshotRecentN(t *testing.T) {
	s := New(10)
	for i := 1; i <= 25; i++ {
		s.Append(mk(i))
	}
	snap := s.Snapshot(3)
	want := []int64{23, 24, 25}
	for k, w := range want {
		if snap.Timestamps[k] != w {
			t.Fatalf("Expected %v, got %v", want, snap.Timestamps)
		}
	}
	if snap.Appended != 25 {
		t.Errorf("Expected appended=25, got %d", snap.Appended)
	}

	samples := s.Samples(2)
	if len(samples) != 2 || samples[1] != mk(25) {
		t.Errorf("Unexpected samples: %v", samples)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(4)
	s.Append(mk(1))
	snap := s.Snapshot(0)
	snap.Channels[0][0] = 999
	if s.Snapshot(0).Channels[0][0] != 1 {
		t.Fatal("Snapshot shares memory with the store")
	}
}

func TestClear(t *testing.T) {
	s := New(4)
	for i := 0; i < 6; i++ {
		s.Append(mk(i))
	}
	s.Clear()
	if s.Len() != 0 || s.Snapshot(0).Len() != 0 {
		t.Fatal("Expected empty store after Clear")
	}
	s.Append(mk(42))
	if snap := s.Snapshot(0); snap.Len() != 1 || snap.Timestamps[0] != 42 {
		t.Fatalf("Unexpected snapshot after Clear+Append: %+v", snap)
	}
}

func TestConcurrentReadersSeeConsistentSeries(t *testing.T) {
	s := New(DefaultCapacity)
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 20000; i++ {
			s.Append(mk(i))
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := s.Snapshot(100)
				for k := 0; k < snap.Len(); k++ {
					ts := float64(snap.Timestamps[k])
					if snap.Channels[1][k] != ts*2 {
						t.Errorf("Torn read at %d: ts=%v ch2=%v", k, ts, snap.Channels[1][k])
						return
					}
					if k > 0 && snap.Timestamps[k] != snap.Timestamps[k-1]+1 {
						t.Errorf("Non-contiguous snapshot at %d", k)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
