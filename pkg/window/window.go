package window

import (
	"sync"

	"github.com/scopeview/pkg/sample"
)

// DefaultCapacity is the number of samples kept for rendering.
const DefaultCapacity = 500

// Store is a fixed-capacity FIFO of samples kept as five parallel series (timestamps and
// four channels) in a ring. Appending to a full store evicts the oldest sample.
// A single writer and any number of readers may use it concurrently.
type Store struct {
	mu sync.RWMutex

	ts   []int64
	ch   [sample.NumChannels][]float64
	head int // index of the oldest sample
	n    int

	appended uint64
}

// Snapshot is an immutable copy of the most recent samples, oldest first. All series
// have the same length and index i refers to the same sample across them.
type Snapshot struct {
	Timestamps []int64
	Channels   [sample.NumChannels][]float64
	// Appended is the total number of samples ever appended to the store.
	Appended uint64
}

// Len returns the number of samples in the snapshot.
func (s Snapshot) Len() int { return len(s.Timestamps) }

// New returns an empty store. A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{ts: make([]int64, capacity)}
	for i := range s.ch {
		s.ch[i] = make([]float64, capacity)
	}
	return s
}

// Append pushes smp, dropping the oldest sample when the store is full.
func (s *Store) Append(smp sample.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := len(s.ts)
	idx := (s.head + s.n) % c
	if s.n == c {
		// full: overwrite the oldest slot and advance head
		idx = s.head
		s.head = (s.head + 1) % c
	} else {
		s.n++
	}
	s.ts[idx] = smp.TimestampMS
	for i := range s.ch {
		s.ch[i][idx] = smp.Ch[i]
	}
	s.appended++
}

// Snapshot copies the most recent n samples. n <= 0 or n larger than the current length
// returns everything held.
func (s *Store) Snapshot(n int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.n {
		n = s.n
	}
	out := Snapshot{Timestamps: make([]int64, n), Appended: s.appended}
	for i := range out.Channels {
		out.Channels[i] = make([]float64, n)
	}
	c := len(s.ts)
	start := s.head + s.n - n
	for k := 0; k < n; k++ {
		idx := (start + k) % c
		out.Timestamps[k] = s.ts[idx]
		for i := range out.Channels {
			out.Channels[i][k] = s.ch[i][idx]
		}
	}
	return out
}

// Samples returns the most recent n samples as Sample values, oldest first.
func (s *Store) Samples(n int) []sample.Sample {
	snap := s.Snapshot(n)
	out := make([]sample.Sample, snap.Len())
	for k := range out {
		out[k].TimestampMS = snap.Timestamps[k]
		for i := range snap.Channels {
			out[k].Ch[i] = snap.Channels[i][k]
		}
	}
	return out
}

// Len returns the number of samples held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// Cap returns the fixed capacity.
func (s *Store) Cap() int { return len(s.ts) }

// Clear drops every sample. The appended counter is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.n = 0
}
