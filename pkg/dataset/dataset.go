// Package dataset writes benchmark targets: files of native-endian doubles
// whose length is a whole number of chunks.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/vecsum/vecsum/pkg/vecsum"
)

// Fill chooses the values written.
type Fill struct {
	// Sequence writes 0, 1, 2, ... instead of a constant.
	Sequence bool
	// Value is the constant written when Sequence is false.
	Value float64
}

// Constant returns a Fill of v.
func Constant(v float64) Fill { return Fill{Value: v} }

// Sequence returns a Fill of ascending indices.
func Sequence() Fill { return Fill{Sequence: true} }

// ExpectedSum is the sum of one pass over a target of the given number of
// chunks. Integer fills are exact while every partial sum stays below 2^53.
func (f Fill) ExpectedSum(chunks int) float64 {
	n := float64(chunks) * float64(vecsum.ChunkSize/vecsum.ScalarSize)
	if f.Sequence {
		return n * (n - 1) / 2
	}
	return n * f.Value
}

// Size returns the byte length of a target with the given number of chunks.
func Size(chunks int) int64 { return int64(chunks) * vecsum.ChunkSize }

// Write writes chunks whole chunks of f to w.
func Write(w io.Writer, chunks int, f Fill) (int64, error) {
	if chunks <= 0 {
		return 0, fmt.Errorf("dataset.Write: chunks must be positive, got %d", chunks)
	}
	block := make([]float64, vecsum.ChunkSize/vecsum.ScalarSize)
	if !f.Sequence {
		for i := range block {
			block[i] = f.Value
		}
	}
	var written int64
	var next float64
	for c := 0; c < chunks; c++ {
		if f.Sequence {
			for i := range block {
				block[i] = next
				next++
			}
		}
		n, err := w.Write(vecsum.Bytes(block))
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("dataset.Write: chunk %d: %w", c, err)
		}
	}
	return written, nil
}

// WriteFile creates path and writes chunks whole chunks of f to it.
func WriteFile(path string, chunks int, f Fill) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("dataset.WriteFile: %w", err)
	}
	bw := bufio.NewWriterSize(out, 1<<20)
	n, err := Write(bw, chunks, f)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return n, fmt.Errorf("dataset.WriteFile: %s: %w", path, err)
	}
	return n, nil
}
