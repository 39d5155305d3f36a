// Package vecsum holds the fixed geometry shared by every read path and the
// reduction kernel used to consume each chunk.
package vecsum

import (
	"fmt"
	"unsafe"
)

const (
	// ChunkSize is the unit of alignment for targets and the size of every
	// chunk handed to Sum.
	ChunkSize = 8 * 1024 * 1024

	// ZeroCopyReadSize is the block requested per zero-copy read.
	ZeroCopyReadSize = 8 * 1024 * 1024

	// StreamingReadSize is the block filled per streaming read.
	StreamingReadSize = 8 * 1024 * 1024

	// ScalarSize is the width in bytes of one element.
	ScalarSize = 8

	// Unroll is the number of elements consumed per reducer iteration.
	Unroll = 16
)

// CheckByteSize reports whether n bytes hold a whole number of reducer
// iterations. name identifies the constant in the error.
func CheckByteSize(n int, name string) error {
	if n <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, n)
	}
	if n%ScalarSize != 0 {
		return fmt.Errorf("%s (%d) is not a multiple of the scalar size %d", name, n, ScalarSize)
	}
	if (n/ScalarSize)%Unroll != 0 {
		return fmt.Errorf("the number of scalars in %s (%d) is not a multiple of the unroll factor %d",
			name, n/ScalarSize, Unroll)
	}
	return nil
}

// CheckConstants validates all build-time chunk sizes.
func CheckConstants() error {
	for _, c := range []struct {
		name string
		size int
	}{
		{"ChunkSize", ChunkSize},
		{"ZeroCopyReadSize", ZeroCopyReadSize},
		{"StreamingReadSize", StreamingReadSize},
	} {
		if err := CheckByteSize(c.size, c.name); err != nil {
			return err
		}
	}
	return nil
}

// Float64s reinterprets b as a slice of float64 in host byte order without
// copying. b must be 8-byte aligned and its length a multiple of ScalarSize.
func Float64s(b []byte) ([]float64, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%ScalarSize != 0 {
		return nil, fmt.Errorf("vecsum.Float64s: length %d is not a multiple of %d", len(b), ScalarSize)
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	if uintptr(p)%unsafe.Alignof(float64(0)) != 0 {
		return nil, fmt.Errorf("vecsum.Float64s: buffer at %p is not 8-byte aligned", p)
	}
	return unsafe.Slice((*float64)(p), len(b)/ScalarSize), nil
}

// Bytes returns the raw byte view of f.
func Bytes(f []float64) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(f))), len(f)*ScalarSize)
}
