package harness

import (
	"github.com/vecsum/vecsum/pkg/backend"
)

// Chunk is one view of doubles handed from a strategy to the reducer. The
// strategy owns the backing memory; the chunk is only valid until it is
// passed to Release.
type Chunk struct {
	Data []float64

	zc *backend.ZeroCopyBuffer
}

// Len returns the number of doubles in the chunk.
func (c Chunk) Len() int { return len(c.Data) }

// Bytes returns the chunk size in bytes.
func (c Chunk) Bytes() int64 { return int64(len(c.Data)) * scalarSize }

// Strategy is one way of reading the target. The driver never looks past
// this interface.
type Strategy interface {
	// Name is the strategy name used in reports.
	Name() string

	// NextChunk returns the next chunk of the current pass, or io.EOF once
	// the pass has covered the whole target.
	NextChunk() (Chunk, error)

	// Release hands a chunk's storage back to the strategy.
	Release(c Chunk) error

	// Reset rewinds to offset zero for another pass.
	Reset() error
}
