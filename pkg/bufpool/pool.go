// Package bufpool is an elastic pool of float64-aligned buffers that hands
// out opaque handles instead of the buffers themselves.
package bufpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vecsum/vecsum/pkg/vecsum"
)

// ErrUnknownHandle is returned when a handle was never issued by the pool or
// was already returned.
var ErrUnknownHandle = errors.New("bufpool: unknown or released handle")

// ErrClosed is returned by Get after Drain.
var ErrClosed = errors.New("bufpool: pool drained")

// Handle identifies a checked-out buffer.
type Handle uint64

// entry is one pooled buffer.
type entry struct {
	buf      []float64
	size     int // bytes
	borrowed bool
}

// Pool keeps released buffers keyed by byte size and reuses them for later
// requests of the same size. A buffer that is checked out is never handed
// to another caller until it is returned with Put.
type Pool struct {
	mu      sync.Mutex
	entries map[Handle]*entry
	free    map[int][]Handle
	next    Handle
	closed  bool

	allocated int64 // bytes ever allocated
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		entries: make(map[Handle]*entry),
		free:    make(map[int][]Handle),
	}
}

// Get borrows a buffer of exactly size bytes. size must be a positive
// multiple of the scalar size.
func (p *Pool) Get(size int) (Handle, []float64, error) {
	if size <= 0 || size%vecsum.ScalarSize != 0 {
		return 0, nil, fmt.Errorf("bufpool.Get: invalid size %d", size)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, ErrClosed
	}

	if hs := p.free[size]; len(hs) > 0 {
		h := hs[len(hs)-1]
		p.free[size] = hs[:len(hs)-1]
		e := p.entries[h]
		e.borrowed = true
		return h, e.buf, nil
	}

	p.next++
	h := p.next
	e := &entry{buf: make([]float64, size/vecsum.ScalarSize), size: size, borrowed: true}
	p.entries[h] = e
	p.allocated += int64(size)
	return h, e.buf, nil
}

// Put returns a borrowed buffer to the pool.
func (p *Pool) Put(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[h]
	if !ok || !e.borrowed {
		return ErrUnknownHandle
	}
	e.borrowed = false
	if p.closed {
		delete(p.entries, h)
		return nil
	}
	p.free[e.size] = append(p.free[e.size], h)
	return nil
}

// Outstanding returns how many buffers are currently borrowed.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.borrowed {
			n++
		}
	}
	return n
}

// Size returns the number of buffers owned by the pool, borrowed or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// AllocatedBytes returns the total bytes the pool has ever allocated.
func (p *Pool) AllocatedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Drain releases every buffer, including ones still borrowed, and refuses
// further Gets. It returns the number of buffers that were still borrowed.
func (p *Pool) Drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	outstanding := 0
	for h, e := range p.entries {
		if e.borrowed {
			outstanding++
		}
		e.buf = nil
		delete(p.entries, h)
	}
	p.free = make(map[int][]Handle)
	p.closed = true
	return outstanding
}
