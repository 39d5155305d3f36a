package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vecsum/vecsum/pkg/bufpool"
	"github.com/vecsum/vecsum/pkg/stats"
)

// ErrNotFound is returned when an object or directory does not exist.
var ErrNotFound = errors.New("not found")

// DefaultEndpoint names the backend used when a run does not select one.
const DefaultEndpoint = "default"

// ObjectInfo describes a remote object or directory.
type ObjectInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	ETag    string
	IsDir   bool
}

// ReadOptions tune zero-copy reads.
type ReadOptions struct {
	// SkipChecksums permits handing out mapped pages directly. Without it a
	// zero-copy read falls back to copying into a pooled buffer.
	SkipChecksums bool
}

// Backend abstracts a storage system reachable by the harness.
// Implementations wrap rclone backends.
type Backend interface {
	// Name returns the configured name of this backend.
	Name() string

	// Type returns the backend type (e.g. "azureblob", "s3", "local").
	Type() string

	// Stat returns info for a single object or directory.
	Stat(ctx context.Context, path string) (ObjectInfo, error)

	// OpenFile opens an object for sequential reads starting at offset 0.
	OpenFile(ctx context.Context, path string) (File, error)

	// Write writes data to the given path. Creates or overwrites.
	Write(ctx context.Context, path string, r io.Reader, size int64) error

	// Close releases resources held by this backend.
	Close() error
}

// File is an open object. It is not safe for concurrent use.
type File interface {
	io.Reader
	io.Seeker
	io.Closer

	// Size returns the object length in bytes.
	Size() int64

	// ReadZero returns up to maxLen bytes at the current offset without an
	// intermediate copy when the transport allows it, otherwise in a buffer
	// borrowed from pool. At end of file it returns (nil, io.EOF). The
	// buffer must be handed back with ReleaseBuffer.
	ReadZero(pool *bufpool.Pool, maxLen int, opts ReadOptions) (*ZeroCopyBuffer, error)

	// ReleaseBuffer returns a buffer obtained from ReadZero.
	ReleaseBuffer(buf *ZeroCopyBuffer) error

	// ReadStatistics returns cumulative counters for this handle.
	ReadStatistics() stats.ReadStatistics

	// ClearReadStatistics resets the cumulative counters to zero.
	ClearReadStatistics()
}

// Registry manages named backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry, keyed by its Name().
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend.Registry: backend %q already registered", name)
	}
	r.backends[name] = b
	return nil
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend.Registry: backend %q not found", name)
	}
	return b, nil
}

// Resolve returns the backend registered for endpoint. An empty endpoint
// means DefaultEndpoint; if nothing is registered under that name a local
// backend rooted at "/" is created and registered.
func (r *Registry) Resolve(endpoint string) (Backend, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.backends[endpoint]; ok {
		return b, nil
	}
	if endpoint != DefaultEndpoint {
		return nil, fmt.Errorf("backend.Registry: endpoint %q not configured", endpoint)
	}
	b, err := NewRcloneBackend(DefaultEndpoint, "local", "/", map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("backend.Registry: default endpoint: %w", err)
	}
	r.backends[endpoint] = b
	return b, nil
}

// Close closes all registered backends.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
