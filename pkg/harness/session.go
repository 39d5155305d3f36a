// Package harness opens a benchmark target, reads it through one of three
// strategies and reduces every chunk, timing the whole run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/edsrzf/mmap-go"

	"github.com/vecsum/vecsum/pkg/backend"
	"github.com/vecsum/vecsum/pkg/bufpool"
	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/stats"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

const chunkSize = vecsum.ChunkSize

// Options carries the environment a Session is opened in.
type Options struct {
	// Registry supplies the backend named by the run's endpoint. When nil
	// the session uses a private registry holding only the default
	// endpoint, and closes it with the session.
	Registry *backend.Registry

	// SkipChecksums is passed to zero-copy reads.
	SkipChecksums bool
}

// Session owns every resource of one run: the open handle or mapping, the
// buffer pool and the statistics. Close must be called on every path.
type Session struct {
	cfg  config.RunConfig
	opts Options

	length int64

	// remote strategies
	be      backend.Backend
	file    backend.File
	ownsReg *backend.Registry

	// memory-mapped strategy
	local   *os.File
	mapping mmap.MMap
	mapped  []float64

	pool    *bufpool.Pool
	tracker *stats.Tracker

	closed bool
}

// Open validates cfg, reaches the target and checks that its length is a
// non-zero multiple of the chunk size. On error every partially acquired
// resource is released.
func Open(ctx context.Context, cfg config.RunConfig, opts Options) (s *Session, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s = &Session{
		cfg:     cfg,
		opts:    opts,
		pool:    bufpool.New(),
		tracker: stats.NewTracker(),
	}
	defer func() {
		if err != nil {
			if cerr := s.Close(); cerr != nil {
				slog.Warn("Session cleanup failed", "component", "harness", "path", cfg.Path, "error", cerr)
			}
			s = nil
		}
	}()

	if cfg.Strategy.Remote() {
		err = s.openRemote(ctx)
	} else {
		err = s.openMapped()
	}
	if err != nil {
		return s, err
	}
	slog.Debug("Session opened",
		"component", "harness", "path", cfg.Path, "strategy", cfg.Strategy,
		"endpoint", cfg.Endpoint, "length", s.length,
	)
	return s, nil
}

func (s *Session) openRemote(ctx context.Context) error {
	reg := s.opts.Registry
	if reg == nil {
		reg = backend.NewRegistry()
		s.ownsReg = reg
	}
	be, err := reg.Resolve(s.cfg.Endpoint)
	if err != nil {
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: err}
	}
	s.be = be

	path, err := remotePath(be, s.cfg.Path)
	if err != nil {
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: err}
	}
	info, err := be.Stat(ctx, path)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return &ResourceError{Kind: ResourceNotFound, Path: s.cfg.Path, Err: err}
		}
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: err}
	}
	if info.IsDir {
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: errors.New("is a directory")}
	}
	if err := checkLength(s.cfg.Path, info.Size); err != nil {
		return err
	}
	s.length = info.Size

	f, err := be.OpenFile(ctx, path)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return &ResourceError{Kind: ResourceNotFound, Path: s.cfg.Path, Err: err}
		}
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: err}
	}
	s.file = f
	s.tracker.Rebase(f.ReadStatistics())
	return nil
}

// remotePath maps the run's path onto the backend. A local backend rooted
// at "/" takes absolute paths without the leading slash; relative paths
// are resolved against the working directory first.
func remotePath(be backend.Backend, path string) (string, error) {
	r, ok := be.(interface{ Root() string })
	if !ok || be.Type() != "local" || r.Root() != "/" {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(filepath.ToSlash(abs), "/"), nil
}

func (s *Session) openMapped() error {
	fi, err := os.Stat(s.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ResourceError{Kind: ResourceNotFound, Path: s.cfg.Path, Err: err}
		}
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: errors.New("not a regular file")}
	}
	if err := checkLength(s.cfg.Path, fi.Size()); err != nil {
		return err
	}
	s.length = fi.Size()

	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return &ResourceError{Kind: ResourceOpen, Path: s.cfg.Path, Err: err}
	}
	s.local = f

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return &AllocationError{What: "file mapping", Size: s.length, Err: err}
	}
	s.mapping = m
	metrics.MappedBytes.Add(float64(len(m)))
	if err := backend.AdviseSequential(m); err != nil {
		slog.Debug("madvise failed", "component", "harness", "path", s.cfg.Path, "error", err)
	}
	s.mapped, err = vecsum.Float64s(m)
	if err != nil {
		return &AllocationError{What: "file mapping", Size: s.length, Err: err}
	}
	return nil
}

func checkLength(path string, n int64) error {
	switch {
	case n == 0:
		return &ResourceError{Kind: ResourceEmpty, Path: path}
	case n%chunkSize != 0:
		return &ResourceError{Kind: ResourceUnaligned, Path: path, Size: n}
	}
	return nil
}

// Config returns the run parameters the session was opened with.
func (s *Session) Config() config.RunConfig { return s.cfg }

// Length returns the target length in bytes.
func (s *Session) Length() int64 { return s.length }

// Stats returns the statistics accumulated so far.
func (s *Session) Stats() stats.ReadStatistics { return s.tracker.Snapshot() }

// Pool returns the session's buffer pool.
func (s *Session) Pool() *bufpool.Pool { return s.pool }

// foldStats pulls the handle's cumulative counters and adds the change
// since the last call.
func (s *Session) foldStats() stats.ReadStatistics {
	if s.file == nil {
		return stats.ReadStatistics{}
	}
	return s.tracker.Update(s.file.ReadStatistics())
}

// rewind seeks the handle back to offset zero and restarts its counters.
// Counts not yet folded are folded first, so nothing is lost.
func (s *Session) rewind() error {
	s.foldStats()
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.file.ClearReadStatistics()
	s.tracker.Rebase(stats.ReadStatistics{})
	return nil
}

// NewStrategy returns the read strategy selected by the run config.
func (s *Session) NewStrategy() (Strategy, error) {
	if s.closed {
		return nil, fmt.Errorf("harness.NewStrategy: session closed")
	}
	switch s.cfg.Strategy {
	case config.StrategyStreaming:
		return newStreaming(s), nil
	case config.StrategyZeroCopy:
		return newZeroCopy(s), nil
	case config.StrategyMemoryMapped:
		return newMapped(s), nil
	default:
		return nil, fmt.Errorf("harness.NewStrategy: unknown strategy %v", s.cfg.Strategy)
	}
}

// Close releases the handle, drains the pool and unmaps the target. It is
// safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	if n := s.pool.Drain(); n > 0 {
		slog.Warn("Buffers still borrowed at close", "component", "harness", "count", n)
	}
	metrics.PoolBuffersOutstanding.Set(0)
	s.mapped = nil
	if s.mapping != nil {
		n := len(s.mapping)
		if err := s.mapping.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		metrics.MappedBytes.Sub(float64(n))
		s.mapping = nil
	}
	if s.local != nil {
		if err := s.local.Close(); err != nil {
			errs = append(errs, err)
		}
		s.local = nil
	}
	if s.ownsReg != nil {
		if err := s.ownsReg.Close(); err != nil {
			errs = append(errs, err)
		}
		s.ownsReg = nil
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("harness.Session.Close: %w", err)
	}
	return nil
}
