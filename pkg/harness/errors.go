package harness

import (
	"fmt"
)

// ResourceKind classifies a ResourceError.
type ResourceKind int

const (
	// ResourceNotFound means the target's metadata could not be found.
	ResourceNotFound ResourceKind = iota + 1
	// ResourceUnaligned means the target length is not a multiple of the chunk size.
	ResourceUnaligned
	// ResourceEmpty means the target has zero length.
	ResourceEmpty
	// ResourceOpen covers every other failure to reach or open the target.
	ResourceOpen
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceNotFound:
		return "not found"
	case ResourceUnaligned:
		return "unaligned"
	case ResourceEmpty:
		return "empty target"
	case ResourceOpen:
		return "open failed"
	default:
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
}

// ResourceError is returned by Open when the target cannot be benchmarked.
type ResourceError struct {
	Kind ResourceKind
	Path string
	Size int64
	Err  error
}

func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("harness: %s: %s", e.Path, e.Kind)
	if e.Kind == ResourceUnaligned {
		msg += fmt.Sprintf(": size %d is not a multiple of %d", e.Size, chunkSize)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Is matches any ResourceError of the same kind, so the Err* values below
// can be used with errors.Is.
func (e *ResourceError) Is(target error) bool {
	t, ok := target.(*ResourceError)
	return ok && t.Kind == e.Kind
}

// ReadKind classifies a ReadError.
type ReadKind int

const (
	// ReadPartial is a streaming block that ended short of full.
	ReadPartial ReadKind = iota + 1
	// ReadPartialZeroCopy is a zero-copy buffer shorter than requested.
	ReadPartialZeroCopy
	// ReadTruncated is a pass that ended before the target length.
	ReadTruncated
	// ReadOverrun is a pass that produced more bytes than the target length.
	ReadOverrun
	// ReadIO is an error from the underlying transport.
	ReadIO
)

func (k ReadKind) String() string {
	switch k {
	case ReadPartial:
		return "partial read"
	case ReadPartialZeroCopy:
		return "partial zero-copy read"
	case ReadTruncated:
		return "truncated pass"
	case ReadOverrun:
		return "pass overrun"
	case ReadIO:
		return "I/O error"
	default:
		return fmt.Sprintf("ReadKind(%d)", int(k))
	}
}

// ReadError aborts a run. The harness never retries a read.
type ReadError struct {
	Kind     ReadKind
	Strategy string
	Pass     int
	Offset   int64
	Got      int64
	Want     int64
	Err      error
}

func (e *ReadError) Error() string {
	msg := fmt.Sprintf("harness: %s pass %d: %s at offset %d", e.Strategy, e.Pass, e.Kind, e.Offset)
	if e.Want > 0 {
		msg += fmt.Sprintf(": got %d of %d bytes", e.Got, e.Want)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadError) Unwrap() error { return e.Err }

// Is matches any ReadError of the same kind.
func (e *ReadError) Is(target error) bool {
	t, ok := target.(*ReadError)
	return ok && t.Kind == e.Kind
}

// AllocationError reports a failure to obtain a buffer or mapping.
type AllocationError struct {
	What string
	Size int64
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("harness: allocate %s (%d bytes): %v", e.What, e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// Kind values for errors.Is.
var (
	ErrNotFound        = &ResourceError{Kind: ResourceNotFound}
	ErrUnaligned       = &ResourceError{Kind: ResourceUnaligned}
	ErrEmptyTarget     = &ResourceError{Kind: ResourceEmpty}
	ErrPartial         = &ReadError{Kind: ReadPartial}
	ErrPartialZeroCopy = &ReadError{Kind: ReadPartialZeroCopy}
	ErrTruncated       = &ReadError{Kind: ReadTruncated}
	ErrOverrun         = &ReadError{Kind: ReadOverrun}
)
