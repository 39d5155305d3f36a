package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/stats"

	// Register rclone backends via blank imports.
	_ "github.com/rclone/rclone/backend/azureblob"
	_ "github.com/rclone/rclone/backend/googlecloudstorage"
	_ "github.com/rclone/rclone/backend/local"
	_ "github.com/rclone/rclone/backend/s3"
	_ "github.com/rclone/rclone/backend/sftp"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/rclone/rclone/fs/hash"
	"github.com/rclone/rclone/fs/object"
)

// RcloneBackend wraps an rclone fs.Fs as a Backend.
type RcloneBackend struct {
	name     string
	backType string
	rfs      fs.Fs
	tier     stats.Tier // tier credited for stream reads
}

// NewRcloneBackend creates a backend from config.
// backendType is the rclone backend name (e.g. "azureblob", "s3", "local").
// remotePath is the bucket/container + optional prefix.
// params maps rclone config keys to values.
func NewRcloneBackend(name, backendType, remotePath string, params map[string]string) (*RcloneBackend, error) {
	m := configmap.Simple(params)

	regInfo, err := fs.Find(backendType)
	if err != nil {
		return nil, fmt.Errorf("backend.NewRcloneBackend: unknown type %q: %w", backendType, err)
	}

	rfs, err := regInfo.NewFs(context.Background(), name, remotePath, m)
	if err != nil {
		return nil, fmt.Errorf("backend.NewRcloneBackend: create %q (%s): %w", name, backendType, err)
	}

	b := &RcloneBackend{name: name, backType: backendType, rfs: rfs, tier: stats.TierRemote}
	switch {
	case b.IsLocal():
		b.tier = stats.TierShortCircuit
	case sameHost(params):
		b.tier = stats.TierLocal
	}

	slog.Info("Backend created",
		"component", "backend", "name", name,
		"type", backendType, "path", remotePath, "tier", b.tier,
	)
	return b, nil
}

func (b *RcloneBackend) Name() string { return b.name }
func (b *RcloneBackend) Type() string { return b.backType }

// Root returns the root the backend was created with, as rclone normalised it.
func (b *RcloneBackend) Root() string { return b.rfs.Root() }

// IsLocal reports whether objects live on this host's filesystem and can be
// opened and mapped directly.
func (b *RcloneBackend) IsLocal() bool {
	return b.rfs.Features().IsLocal
}

// Stat returns info for a single object or directory.
func (b *RcloneBackend) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	start := time.Now()
	obj, err := b.rfs.NewObject(ctx, path)
	metrics.BackendRequestDuration.WithLabelValues(b.name, "stat").Observe(time.Since(start).Seconds())
	if err == nil {
		return objectInfoFromRclone(ctx, obj), nil
	}

	if errors.Is(err, fs.ErrorIsDir) || errors.Is(err, fs.ErrorNotAFile) {
		return ObjectInfo{Path: path, IsDir: true}, nil
	}
	if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) {
		return ObjectInfo{}, fmt.Errorf("backend %s: Stat %q: %w", b.name, path, ErrNotFound)
	}
	metrics.BackendErrors.WithLabelValues(b.name, "stat").Inc()
	return ObjectInfo{}, fmt.Errorf("backend %s: Stat %q: %w", b.name, path, err)
}

// OpenFile opens an object for sequential reads. The stream itself is
// opened lazily on the first Read.
func (b *RcloneBackend) OpenFile(ctx context.Context, path string) (File, error) {
	start := time.Now()
	obj, err := b.rfs.NewObject(ctx, path)
	metrics.BackendRequestDuration.WithLabelValues(b.name, "open").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendErrors.WithLabelValues(b.name, "open").Inc()
		if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) {
			return nil, fmt.Errorf("backend %s: Open %q: %w", b.name, path, ErrNotFound)
		}
		return nil, fmt.Errorf("backend %s: Open %q: %w", b.name, path, err)
	}

	f := &rcloneFile{
		ctx:  ctx,
		be:   b,
		obj:  obj,
		path: path,
		size: obj.Size(),
		tier: b.tier,
		bufs: make(map[*ZeroCopyBuffer]struct{}),
	}
	if b.IsLocal() {
		f.localPath = filepath.Join(b.rfs.Root(), obj.Remote())
	}
	return f, nil
}

// Write writes data to the given path.
func (b *RcloneBackend) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	start := time.Now()
	info := object.NewStaticObjectInfo(path, time.Now(), size, true, nil, nil)
	_, err := b.rfs.Put(ctx, r, info)
	metrics.BackendRequestDuration.WithLabelValues(b.name, "write").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendErrors.WithLabelValues(b.name, "write").Inc()
		return fmt.Errorf("backend %s: Write %q: %w", b.name, path, err)
	}
	return nil
}

// Close releases resources.
func (b *RcloneBackend) Close() error {
	slog.Info("Backend closed", "component", "backend", "name", b.name)
	return nil
}

func objectInfoFromRclone(ctx context.Context, obj fs.Object) ObjectInfo {
	oi := ObjectInfo{
		Path:    obj.Remote(),
		Size:    obj.Size(),
		ModTime: obj.ModTime(ctx),
	}
	if h, err := obj.Hash(ctx, hash.MD5); err == nil && h != "" {
		oi.ETag = h
	}
	return oi
}

// sameHost reports whether the backend's configured endpoint resolves to
// this machine.
func sameHost(params map[string]string) bool {
	hostname, _ := os.Hostname()
	for _, key := range []string{"endpoint", "host", "url", "address"} {
		v := params[key]
		if v == "" {
			continue
		}
		h := v
		if u, err := url.Parse(v); err == nil && u.Host != "" {
			h = u.Hostname()
		} else if hh, _, err := net.SplitHostPort(v); err == nil {
			h = hh
		}
		if strings.EqualFold(h, "localhost") || (hostname != "" && strings.EqualFold(h, hostname)) {
			return true
		}
		if ip := net.ParseIP(h); ip != nil && ip.IsLoopback() {
			return true
		}
	}
	return false
}
