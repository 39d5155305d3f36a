// Package stats provides the read counters and stopwatch used to measure a run.
package stats

import "sync"

// ReadStatistics counts bytes read through one handle, broken down by tier.
// TotalBytes counts every byte. Each byte is additionally attributed to at
// most one tier, the most specific one that served it.
type ReadStatistics struct {
	TotalBytes        int64 `json:"total_bytes"`
	LocalBytes        int64 `json:"local_bytes"`
	ShortCircuitBytes int64 `json:"short_circuit_bytes"`
	ZeroCopyBytes     int64 `json:"zero_copy_bytes"`
}

// Tier identifies the path that served a read.
type Tier int

const (
	TierRemote       Tier = iota // only TotalBytes
	TierLocal                    // same host, through the transport
	TierShortCircuit             // direct access to the local file
	TierZeroCopy                 // mapped local pages, no copy
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierShortCircuit:
		return "short_circuit"
	case TierZeroCopy:
		return "zero_copy"
	default:
		return "remote"
	}
}

// Record adds n bytes served by tier t.
func (s *ReadStatistics) Record(t Tier, n int64) {
	if n <= 0 {
		return
	}
	s.TotalBytes += n
	switch t {
	case TierLocal:
		s.LocalBytes += n
	case TierShortCircuit:
		s.ShortCircuitBytes += n
	case TierZeroCopy:
		s.ZeroCopyBytes += n
	}
}

// Add returns s + o.
func (s ReadStatistics) Add(o ReadStatistics) ReadStatistics {
	return ReadStatistics{
		TotalBytes:        s.TotalBytes + o.TotalBytes,
		LocalBytes:        s.LocalBytes + o.LocalBytes,
		ShortCircuitBytes: s.ShortCircuitBytes + o.ShortCircuitBytes,
		ZeroCopyBytes:     s.ZeroCopyBytes + o.ZeroCopyBytes,
	}
}

// Sub returns s - o per counter.
func (s ReadStatistics) Sub(o ReadStatistics) ReadStatistics {
	return ReadStatistics{
		TotalBytes:        s.TotalBytes - o.TotalBytes,
		LocalBytes:        s.LocalBytes - o.LocalBytes,
		ShortCircuitBytes: s.ShortCircuitBytes - o.ShortCircuitBytes,
		ZeroCopyBytes:     s.ZeroCopyBytes - o.ZeroCopyBytes,
	}
}

// TierBytes returns the sum of the tier counters, excluding TotalBytes.
func (s ReadStatistics) TierBytes() int64 {
	return s.LocalBytes + s.ShortCircuitBytes + s.ZeroCopyBytes
}

// Tracker folds absolute counter snapshots from a transport into a running
// total. The transport exposes cumulative counters, so only the change since
// the previous snapshot is added.
type Tracker struct {
	mu       sync.Mutex
	previous ReadStatistics
	total    ReadStatistics
}

// NewTracker returns a Tracker with a zero baseline.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update applies the delta between snap and the previous snapshot and makes
// snap the new baseline. It returns the delta that was applied.
//
// A counter lower than its baseline means the transport reset it; the new
// absolute value is then the delta.
func (t *Tracker) Update(snap ReadStatistics) ReadStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := ReadStatistics{
		TotalBytes:        counterDelta(snap.TotalBytes, t.previous.TotalBytes),
		LocalBytes:        counterDelta(snap.LocalBytes, t.previous.LocalBytes),
		ShortCircuitBytes: counterDelta(snap.ShortCircuitBytes, t.previous.ShortCircuitBytes),
		ZeroCopyBytes:     counterDelta(snap.ZeroCopyBytes, t.previous.ZeroCopyBytes),
	}
	t.total = t.total.Add(d)
	t.previous = snap
	return d
}

// Rebase sets a new baseline without counting anything. Use it when the
// tracker starts following a different handle.
func (t *Tracker) Rebase(snap ReadStatistics) {
	t.mu.Lock()
	t.previous = snap
	t.mu.Unlock()
}

// Add counts d directly, for sources that report increments.
func (t *Tracker) Add(d ReadStatistics) {
	t.mu.Lock()
	t.total = t.total.Add(d)
	t.mu.Unlock()
}

// Snapshot returns the accumulated totals.
func (t *Tracker) Snapshot() ReadStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func counterDelta(cur, prev int64) int64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}
