package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/rclone/rclone/fs"

	"github.com/vecsum/vecsum/pkg/bufpool"
	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/stats"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

// rcloneFile is a sequential read handle over one rclone object.
type rcloneFile struct {
	ctx  context.Context
	be   *RcloneBackend
	obj  fs.Object
	path string
	size int64
	tier stats.Tier

	pos   int64         // logical offset
	rc    io.ReadCloser // lazily opened stream
	rcPos int64         // offset of rc

	localPath string   // set for local backends
	local     *os.File // opened on the first mapped read

	st     stats.ReadStatistics
	bufs   map[*ZeroCopyBuffer]struct{}
	closed bool
}

func (f *rcloneFile) Size() int64 { return f.size }

// Read reads from the object stream at the current offset. The stream is
// reopened if the offset moved since the last stream read.
func (f *rcloneFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos >= f.size {
		return 0, io.EOF
	}
	if f.rc == nil || f.rcPos != f.pos {
		if err := f.reopen(); err != nil {
			return 0, err
		}
	}

	n, err := f.rc.Read(p)
	f.pos += int64(n)
	f.rcPos += int64(n)
	f.record(f.tier, n)
	if err != nil && !errors.Is(err, io.EOF) {
		metrics.BackendErrors.WithLabelValues(f.be.name, "read").Inc()
		return n, fmt.Errorf("backend %s: Read %q at %d: %w", f.be.name, f.path, f.pos, err)
	}
	return n, err
}

func (f *rcloneFile) reopen() error {
	if f.rc != nil {
		_ = f.rc.Close()
		f.rc = nil
	}
	start := time.Now()
	var opts []fs.OpenOption
	if f.pos > 0 {
		opts = append(opts, &fs.SeekOption{Offset: f.pos})
	}
	rc, err := f.obj.Open(f.ctx, opts...)
	metrics.BackendRequestDuration.WithLabelValues(f.be.name, "read_open").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.be.name, "read_open").Inc()
		return fmt.Errorf("backend %s: open stream %q at %d: %w", f.be.name, f.path, f.pos, err)
	}
	f.rc = rc
	f.rcPos = f.pos
	return nil
}

// Seek moves the logical offset. The stream is repositioned lazily.
func (f *rcloneFile) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.size + offset
	default:
		return 0, fmt.Errorf("backend %s: Seek %q: invalid whence %d", f.be.name, f.path, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("backend %s: Seek %q: negative position %d", f.be.name, f.path, abs)
	}
	f.pos = abs
	return abs, nil
}

// ReadZero implements File.
func (f *rcloneFile) ReadZero(pool *bufpool.Pool, maxLen int, opts ReadOptions) (*ZeroCopyBuffer, error) {
	if f.closed {
		return nil, os.ErrClosed
	}
	if maxLen <= 0 {
		return nil, fmt.Errorf("backend %s: ReadZero %q: invalid length %d", f.be.name, f.path, maxLen)
	}
	if f.pos >= f.size {
		return nil, io.EOF
	}
	want := int(min(int64(maxLen), f.size-f.pos))

	if f.localPath != "" && opts.SkipChecksums {
		buf, err := f.mapRegion(want)
		if err != nil {
			return nil, err
		}
		f.pos += int64(want)
		f.record(stats.TierZeroCopy, want)
		f.bufs[buf] = struct{}{}
		return buf, nil
	}

	if pool == nil {
		return nil, fmt.Errorf("backend %s: ReadZero %q: no buffer pool for copying read", f.be.name, f.path)
	}
	size := (maxLen + vecsum.ScalarSize - 1) / vecsum.ScalarSize * vecsum.ScalarSize
	h, fb, err := pool.Get(size)
	if err != nil {
		return nil, fmt.Errorf("backend %s: ReadZero %q: %w", f.be.name, f.path, err)
	}
	dst := vecsum.Bytes(fb)[:want]
	got := 0
	for got < want {
		n, err := f.Read(dst[got:])
		got += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			_ = pool.Put(h)
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	buf := &ZeroCopyBuffer{data: dst[:got], pool: pool, handle: h}
	f.bufs[buf] = struct{}{}
	return buf, nil
}

// mapRegion maps want bytes at the current offset from the local file. The
// mapping starts on a page boundary; the buffer exposes only the requested
// range.
func (f *rcloneFile) mapRegion(want int) (*ZeroCopyBuffer, error) {
	if f.local == nil {
		lf, err := os.Open(f.localPath)
		if err != nil {
			return nil, fmt.Errorf("backend %s: ReadZero %q: open local replica: %w", f.be.name, f.path, err)
		}
		f.local = lf
	}
	page := int64(os.Getpagesize())
	base := f.pos - f.pos%page
	skip := int(f.pos - base)

	start := time.Now()
	m, err := mmap.MapRegion(f.local, skip+want, mmap.RDONLY, 0, base)
	metrics.BackendRequestDuration.WithLabelValues(f.be.name, "mmap").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendErrors.WithLabelValues(f.be.name, "mmap").Inc()
		return nil, fmt.Errorf("backend %s: ReadZero %q: map %d bytes at %d: %w", f.be.name, f.path, skip+want, base, err)
	}
	_ = AdviseSequential(m)
	metrics.MappedBytes.Add(float64(len(m)))
	return &ZeroCopyBuffer{data: m[skip : skip+want], mapping: m}, nil
}

// ReleaseBuffer implements File.
func (f *rcloneFile) ReleaseBuffer(buf *ZeroCopyBuffer) error {
	if buf == nil {
		return nil
	}
	if _, ok := f.bufs[buf]; !ok {
		return fmt.Errorf("backend %s: ReleaseBuffer %q: buffer not owned by this file", f.be.name, f.path)
	}
	delete(f.bufs, buf)
	return buf.release()
}

func (f *rcloneFile) ReadStatistics() stats.ReadStatistics { return f.st }

func (f *rcloneFile) ClearReadStatistics() { f.st = stats.ReadStatistics{} }

func (f *rcloneFile) record(t stats.Tier, n int) {
	if n <= 0 {
		return
	}
	f.st.Record(t, int64(n))
	metrics.BackendBytesRead.WithLabelValues(f.be.name, t.String()).Add(float64(n))
}

// Close releases the stream, the local descriptor and any buffers the
// caller did not return.
func (f *rcloneFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	var errs []error
	for buf := range f.bufs {
		if err := buf.release(); err != nil {
			errs = append(errs, err)
		}
	}
	f.bufs = nil
	if f.rc != nil {
		if err := f.rc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		f.rc = nil
	}
	if f.local != nil {
		if err := f.local.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close local replica: %w", err))
		}
		f.local = nil
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("backend %s: Close %q: %w", f.be.name, f.path, err)
	}
	return nil
}
