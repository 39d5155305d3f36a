package telemetry

import (
	"fmt"
	"log/slog"
	"sync"
)

// CollectorConfig configures telemetry collection.
type CollectorConfig struct {
	Sink     string `yaml:"sink"` // "stdout", "file", "http", "nop"
	FilePath string `yaml:"file_path"`
	Addr     string `yaml:"addr"`
}

// Collector batches run events until Flush. Recording never touches the
// sink, so events can be collected while a run is being timed and emitted
// once the stopwatch has stopped.
type Collector struct {
	cfg     CollectorConfig
	emitter Emitter

	batch []RunEvent
	mu    sync.Mutex
}

// NewCollector creates a telemetry collector for the configured sink.
func NewCollector(cfg CollectorConfig) (*Collector, error) {
	var emitter Emitter
	switch cfg.Sink {
	case "stdout":
		emitter = NewStdoutEmitter()
	case "file":
		var err error
		path := cfg.FilePath
		if path == "" {
			path = "vecsum-runs.jsonl"
		}
		emitter, err = NewFileEmitter(path)
		if err != nil {
			return nil, err
		}
	case "http":
		addr := cfg.Addr
		if addr == "" {
			addr = "http://localhost:8080"
		}
		emitter = NewHTTPEmitter(addr)
	case "", "nop":
		emitter = NewNopEmitter()
	default:
		return nil, fmt.Errorf("telemetry.NewCollector: unknown sink %q", cfg.Sink)
	}
	return NewCollectorWithEmitter(cfg, emitter), nil
}

// NewCollectorWithEmitter creates a collector that flushes to emitter.
func NewCollectorWithEmitter(cfg CollectorConfig, emitter Emitter) *Collector {
	return &Collector{cfg: cfg, emitter: emitter}
}

// Record adds a run event to the pending batch.
func (c *Collector) Record(evt RunEvent) {
	c.mu.Lock()
	c.batch = append(c.batch, evt)
	c.mu.Unlock()
}

// Flush sends the pending batch to the sink. The batch is dropped even if
// the sink fails.
func (c *Collector) Flush() error {
	c.mu.Lock()
	if len(c.batch) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.batch
	c.batch = nil
	c.mu.Unlock()

	if err := c.emitter.Emit(batch); err != nil {
		slog.Warn("telemetry flush failed", "component", "telemetry", "count", len(batch), "error", err)
		return err
	}
	return nil
}

// Close flushes remaining events and closes the emitter.
func (c *Collector) Close() error {
	ferr := c.Flush()
	if err := c.emitter.Close(); err != nil {
		return err
	}
	return ferr
}

// Events returns all currently batched events (for testing).
func (c *Collector) Events() []RunEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RunEvent, len(c.batch))
	copy(out, c.batch)
	return out
}
