package harness

import (
	"errors"
	"io"

	"github.com/vecsum/vecsum/pkg/vecsum"
)

const scalarSize = vecsum.ScalarSize

// maxConsecutiveEmptyReads bounds how long a block fill waits on a reader
// that returns no data and no error.
const maxConsecutiveEmptyReads = 100

// streamingStrategy reads fixed-size blocks through the storage client into
// one buffer that is reused for every call.
type streamingStrategy struct {
	sess   *Session
	buf    []float64
	offset int64
	pass   int
}

func newStreaming(s *Session) *streamingStrategy {
	return &streamingStrategy{
		sess: s,
		buf:  make([]float64, vecsum.StreamingReadSize/scalarSize),
	}
}

func (st *streamingStrategy) Name() string { return "streaming" }

func (st *streamingStrategy) NextChunk() (Chunk, error) {
	block := vecsum.Bytes(st.buf)
	n, err := fill(st.sess.file, block)
	st.sess.foldStats()
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return Chunk{}, io.EOF
	case n < len(block) && (err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrNoProgress)):
		return Chunk{}, &ReadError{
			Kind: ReadPartial, Strategy: st.Name(), Pass: st.pass,
			Offset: st.offset, Got: int64(n), Want: int64(len(block)), Err: partialCause(err),
		}
	case err != nil && !errors.Is(err, io.EOF):
		return Chunk{}, st.ioError(err)
	}
	st.offset += int64(n)
	return Chunk{Data: st.buf}, nil
}

func partialCause(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// fill reads until buf is full, the reader reports an error, or it stops
// making progress.
func fill(r io.Reader, buf []byte) (int, error) {
	got, empty := 0, 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if err != nil {
			return got, err
		}
		if n > 0 {
			empty = 0
			continue
		}
		if empty++; empty >= maxConsecutiveEmptyReads {
			return got, io.ErrNoProgress
		}
	}
	return got, nil
}

// Release is a no-op; the block buffer belongs to the strategy.
func (st *streamingStrategy) Release(Chunk) error { return nil }

func (st *streamingStrategy) Reset() error {
	if err := st.sess.rewind(); err != nil {
		return st.ioError(err)
	}
	st.offset = 0
	st.pass++
	return nil
}

func (st *streamingStrategy) ioError(err error) error {
	return &ReadError{Kind: ReadIO, Strategy: st.Name(), Pass: st.pass, Offset: st.offset, Err: err}
}
