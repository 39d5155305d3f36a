package harness

import (
	"io"

	"github.com/vecsum/vecsum/pkg/stats"
)

// mappedStrategy walks the session's whole-file mapping in chunk-sized
// views. It cannot fail once the mapping exists.
type mappedStrategy struct {
	sess   *Session
	cursor int
}

func newMapped(s *Session) *mappedStrategy {
	return &mappedStrategy{sess: s}
}

func (m *mappedStrategy) Name() string { return "mmap" }

func (m *mappedStrategy) NextChunk() (Chunk, error) {
	const per = chunkSize / scalarSize
	if m.cursor >= len(m.sess.mapped) {
		return Chunk{}, io.EOF
	}
	end := min(m.cursor+per, len(m.sess.mapped))
	c := Chunk{Data: m.sess.mapped[m.cursor:end]}
	m.cursor = end

	var d stats.ReadStatistics
	d.Record(stats.TierZeroCopy, c.Bytes())
	m.sess.tracker.Add(d)
	return c, nil
}

// Release is a no-op; the mapping lives until the session closes.
func (m *mappedStrategy) Release(Chunk) error { return nil }

// Reset rewinds the cursor. The mapping is reused.
func (m *mappedStrategy) Reset() error {
	m.cursor = 0
	return nil
}
