package harness

import (
	"errors"
	"io"

	"github.com/vecsum/vecsum/pkg/backend"
	"github.com/vecsum/vecsum/pkg/bufpool"
	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

// zeroCopyStrategy asks the storage client for whole chunks without an
// intermediate copy. Short chunks are never accepted.
type zeroCopyStrategy struct {
	sess   *Session
	opts   backend.ReadOptions
	offset int64
	pass   int
}

func newZeroCopy(s *Session) *zeroCopyStrategy {
	return &zeroCopyStrategy{
		sess: s,
		opts: backend.ReadOptions{SkipChecksums: s.opts.SkipChecksums},
	}
}

func (z *zeroCopyStrategy) Name() string { return "zerocopy" }

func (z *zeroCopyStrategy) NextChunk() (Chunk, error) {
	buf, err := z.sess.file.ReadZero(z.sess.pool, vecsum.ZeroCopyReadSize, z.opts)
	z.sess.foldStats()
	if errors.Is(err, io.EOF) {
		return Chunk{}, io.EOF
	}
	if err != nil {
		if errors.Is(err, bufpool.ErrClosed) {
			return Chunk{}, &AllocationError{What: "zero-copy buffer", Size: vecsum.ZeroCopyReadSize, Err: err}
		}
		return Chunk{}, &ReadError{Kind: ReadIO, Strategy: z.Name(), Pass: z.pass, Offset: z.offset, Err: err}
	}
	if buf.Len() < vecsum.ZeroCopyReadSize {
		_ = z.sess.file.ReleaseBuffer(buf)
		return Chunk{}, &ReadError{
			Kind: ReadPartialZeroCopy, Strategy: z.Name(), Pass: z.pass,
			Offset: z.offset, Got: int64(buf.Len()), Want: vecsum.ZeroCopyReadSize,
		}
	}
	data, err := vecsum.Float64s(buf.Bytes())
	if err != nil {
		_ = z.sess.file.ReleaseBuffer(buf)
		return Chunk{}, &ReadError{Kind: ReadIO, Strategy: z.Name(), Pass: z.pass, Offset: z.offset, Err: err}
	}
	z.offset += int64(buf.Len())
	metrics.PoolBuffersOutstanding.Set(float64(z.sess.pool.Outstanding()))
	metrics.PoolAllocatedBytes.Set(float64(z.sess.pool.AllocatedBytes()))
	return Chunk{Data: data, zc: buf}, nil
}

// Release returns the chunk's buffer to the pool or unmaps it.
func (z *zeroCopyStrategy) Release(c Chunk) error {
	if c.zc == nil {
		return nil
	}
	if err := z.sess.file.ReleaseBuffer(c.zc); err != nil {
		return &ReadError{Kind: ReadIO, Strategy: z.Name(), Pass: z.pass, Offset: z.offset, Err: err}
	}
	return nil
}

func (z *zeroCopyStrategy) Reset() error {
	if err := z.sess.rewind(); err != nil {
		return &ReadError{Kind: ReadIO, Strategy: z.Name(), Pass: z.pass, Offset: z.offset, Err: err}
	}
	z.offset = 0
	z.pass++
	return nil
}
