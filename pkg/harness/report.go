package harness

import (
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/stats"
	"github.com/vecsum/vecsum/pkg/telemetry"
)

// TotalBytes is the number of bytes reduced over all passes.
func (r *Result) TotalBytes() int64 { return r.Sample.Bytes }

// Report writes the stopwatch lines for the run.
func (r *Result) Report(w io.Writer) error {
	return r.Sample.Report(w)
}

// observe publishes the run to Prometheus and the debug log. It runs after
// the stopwatch has stopped.
func (r *Result) observe() {
	for _, p := range r.Passes {
		metrics.PassesTotal.WithLabelValues(r.Strategy).Inc()
		metrics.PassDuration.WithLabelValues(r.Strategy).Observe(p.Duration.Seconds())
	}
	tiers := []struct {
		tier  stats.Tier
		bytes int64
	}{
		{stats.TierLocal, r.Stats.LocalBytes},
		{stats.TierShortCircuit, r.Stats.ShortCircuitBytes},
		{stats.TierZeroCopy, r.Stats.ZeroCopyBytes},
		{stats.TierRemote, r.Stats.TotalBytes - r.Stats.TierBytes()},
	}
	for _, t := range tiers {
		if t.bytes > 0 {
			metrics.BytesRead.WithLabelValues(r.Strategy, t.tier.String()).Add(float64(t.bytes))
		}
	}
	metrics.Throughput.WithLabelValues(r.Strategy).Set(r.Sample.Throughput())

	slog.Debug("Run finished",
		"component", "harness", "strategy", r.Strategy,
		"bytes", humanize.IBytes(uint64(r.Sample.Bytes)),
		"elapsed", r.Sample.Elapsed(), "cpu", r.Sample.CPUTime,
		"total_bytes", r.Stats.TotalBytes,
		"local_bytes", r.Stats.LocalBytes,
		"short_circuit_bytes", r.Stats.ShortCircuitBytes,
		"zero_copy_bytes", r.Stats.ZeroCopyBytes,
	)
}

// RunEvent converts the result into a telemetry event.
func (r *Result) RunEvent() telemetry.RunEvent {
	host, _ := os.Hostname()
	evt := telemetry.RunEvent{
		RunID:      r.ID,
		Timestamp:  r.Sample.Stop,
		NodeHost:   host,
		Strategy:   r.Strategy,
		Endpoint:   r.Endpoint,
		Path:       r.Path,
		FileBytes:  r.FileBytes,
		TotalBytes: r.Sample.Bytes,
		ElapsedSec: r.Sample.Elapsed().Seconds(),
		CPUSec:     r.Sample.CPUTime.Seconds(),
		GiBPerSec:  r.Sample.Throughput(),
		Stats:      r.Stats,
		Passes:     make([]telemetry.PassEvent, 0, len(r.Passes)),
	}
	for _, p := range r.Passes {
		evt.Passes = append(evt.Passes, telemetry.PassEvent{Index: p.Index, Sum: p.Sum, Bytes: p.Bytes, Stats: p.Stats})
	}
	return evt
}
