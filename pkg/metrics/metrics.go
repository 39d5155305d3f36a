package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Harness metrics
	BytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vecsum_bytes_read_total",
		Help: "Bytes reduced by the harness, by strategy and locality tier",
	}, []string{"strategy", "tier"})

	PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vecsum_passes_total",
		Help: "Completed passes over the target file",
	}, []string{"strategy"})

	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vecsum_pass_duration_seconds",
		Help:    "Wall time of a single pass",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60},
	}, []string{"strategy"})

	Throughput = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vecsum_throughput_gib_per_second",
		Help: "Throughput of the last completed run",
	}, []string{"strategy"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vecsum_runs_total",
		Help: "Benchmark runs by outcome",
	}, []string{"strategy", "status"})

	// Backend metrics
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vecsum_backend_request_duration_seconds",
		Help:    "Backend request duration",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
	}, []string{"backend", "operation"})

	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vecsum_backend_errors_total",
		Help: "Backend errors by type",
	}, []string{"backend", "error_type"})

	BackendBytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vecsum_backend_bytes_read_total",
		Help: "Total bytes read from backends",
	}, []string{"backend", "tier"})

	// Buffer metrics
	PoolBuffersOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vecsum_pool_buffers_outstanding",
		Help: "Pooled buffers currently borrowed",
	})
	PoolAllocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vecsum_pool_allocated_bytes",
		Help: "Bytes allocated by the buffer pool",
	})
	MappedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vecsum_mapped_bytes",
		Help: "Bytes of file data currently memory-mapped",
	})
)

func init() {
	// Pre-initialize Vec metrics so they appear in /metrics output before first use.
	for _, s := range []string{"streaming", "zerocopy", "mmap"} {
		PassesTotal.WithLabelValues(s)
		RunsTotal.WithLabelValues(s, "ok")
	}
	BackendRequestDuration.WithLabelValues("", "read_open")
	BackendErrors.WithLabelValues("", "read")
	BackendBytesRead.WithLabelValues("", "remote")
}

// HealthCheck holds a single health check function.
type HealthCheck struct {
	Name  string
	Check func() error
}

// HealthStatus represents the health response.
type HealthStatus struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks"`
}

// healthChecker holds registered health checks.
type healthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck
}

var defaultHealthChecker = &healthChecker{}

// RegisterHealthCheck adds a health check.
func RegisterHealthCheck(name string, check func() error) {
	defaultHealthChecker.mu.Lock()
	defer defaultHealthChecker.mu.Unlock()
	defaultHealthChecker.checks = append(defaultHealthChecker.checks, HealthCheck{
		Name:  name,
		Check: check,
	})
}

// runChecks runs all registered health checks.
func runChecks() HealthStatus {
	defaultHealthChecker.mu.RLock()
	checks := make([]HealthCheck, len(defaultHealthChecker.checks))
	copy(checks, defaultHealthChecker.checks)
	defaultHealthChecker.mu.RUnlock()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]string),
	}

	for _, hc := range checks {
		if err := hc.Check(); err != nil {
			status.Status = "degraded"
			status.Checks[hc.Name] = err.Error()
		} else {
			status.Checks[hc.Name] = "ok"
		}
	}
	return status
}

// HealthzHandler handles GET /healthz requests.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	status := runChecks()
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

// FileHealthCheck returns a check that fails unless path names a readable
// regular file on this host.
func FileHealthCheck(path string) func() error {
	return func() error {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", path)
		}
		return nil
	}
}

// MetricsServer starts an HTTP server for /metrics and /healthz on the given addr.
// It blocks until the provided stop channel is closed, then shuts down gracefully.
func MetricsServer(addr string, stop <-chan struct{}) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", HealthzHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	case err := <-errCh:
		return err
	}
}
