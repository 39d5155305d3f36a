package stats

import (
	"fmt"
	"io"
	"time"
)

// GiB is the binary gigabyte used for throughput figures.
const GiB = 1 << 30

// Stopwatch measures elapsed time on the monotonic clock.
type Stopwatch struct {
	start    time.Time
	startCPU time.Duration
}

// Sample is a finished measurement. Stop is never before Start.
type Sample struct {
	Start   time.Time
	Stop    time.Time
	Bytes   int64
	CPUTime time.Duration
}

// StartStopwatch starts a new stopwatch.
func StartStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now(), startCPU: processCPUTime()}
}

// Stop ends the measurement for the given number of processed bytes.
func (w *Stopwatch) Stop(bytes int64) Sample {
	stop := time.Now()
	if stop.Before(w.start) {
		stop = w.start
	}
	cpu := processCPUTime() - w.startCPU
	if cpu < 0 {
		cpu = 0
	}
	return Sample{Start: w.start, Stop: stop, Bytes: bytes, CPUTime: cpu}
}

// Elapsed is the monotonic duration between start and stop.
func (s Sample) Elapsed() time.Duration {
	return s.Stop.Sub(s.Start)
}

// Throughput returns bytes per second in GiB/s. A zero elapsed time yields 0.
func (s Sample) Throughput() float64 {
	sec := s.Elapsed().Seconds()
	if sec <= 0 {
		return 0
	}
	return float64(s.Bytes) / sec / GiB
}

// Report writes the stopwatch lines.
func (s Sample) Report(w io.Writer) error {
	sec := s.Elapsed().Seconds()
	if _, err := fmt.Fprintf(w, "stopwatch: took %.5g seconds to read %d bytes, for %.5g GB/s\n",
		sec, s.Bytes, s.Throughput()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "stopwatch:  %.5g seconds\n", sec)
	return err
}
