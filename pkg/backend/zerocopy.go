package backend

import (
	"fmt"

	"github.com/edsrzf/mmap-go"

	"github.com/vecsum/vecsum/pkg/bufpool"
	"github.com/vecsum/vecsum/pkg/metrics"
)

// ZeroCopyBuffer is the result of File.ReadZero. Its bytes are either
// mapped pages of a local replica or a buffer borrowed from a pool.
type ZeroCopyBuffer struct {
	data []byte

	mapping mmap.MMap

	pool   *bufpool.Pool
	handle bufpool.Handle

	released bool
}

// Bytes returns the buffer contents. They are valid until the buffer is
// released.
func (b *ZeroCopyBuffer) Bytes() []byte { return b.data }

// Len returns the number of valid bytes.
func (b *ZeroCopyBuffer) Len() int { return len(b.data) }

// Mapped reports whether the bytes are mapped pages rather than a copy.
func (b *ZeroCopyBuffer) Mapped() bool { return b.mapping != nil }

func (b *ZeroCopyBuffer) release() error {
	if b.released {
		return nil
	}
	b.released = true
	b.data = nil
	if b.mapping != nil {
		n := len(b.mapping)
		err := b.mapping.Unmap()
		b.mapping = nil
		metrics.MappedBytes.Sub(float64(n))
		if err != nil {
			return fmt.Errorf("unmap: %w", err)
		}
		return nil
	}
	if b.pool != nil {
		if err := b.pool.Put(b.handle); err != nil {
			return fmt.Errorf("return pooled buffer: %w", err)
		}
	}
	return nil
}
