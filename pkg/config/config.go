package config

import (
	"fmt"
)

// Config is the environment file shared by vecsum-bench and vecsum-ctl. Run
// parameters (path, passes, strategy, endpoint) are not part of it; see
// RunConfig.
type Config struct {
	Run             RunDefaults     `yaml:"run"`
	Backends        []BackendConfig `yaml:"backends"`
	DefaultEndpoint string          `yaml:"default_endpoint"`
	SkipChecksums   *bool           `yaml:"skip_checksums"` // pointer to distinguish unset from false; default true
	Metrics         MetricsConfig   `yaml:"metrics"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
	Results         ResultsConfig   `yaml:"results"`
	Logging         LoggingConfig   `yaml:"logging"`
}

// ChecksumsSkipped reports whether zero-copy reads may hand out mapped
// pages without verifying checksums.
func (c *Config) ChecksumsSkipped() bool {
	if c.SkipChecksums == nil {
		return true
	}
	return *c.SkipChecksums
}

// RunDefaults are run parameters taken from the file when neither a flag
// nor an environment variable sets them.
type RunDefaults struct {
	Path     string `yaml:"path"`
	Passes   int    `yaml:"passes"`
	Strategy string `yaml:"strategy"`
	Endpoint string `yaml:"endpoint"`
}

// MetricsConfig configures the Prometheus metrics and health endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // default false; a benchmark run is short-lived
	Addr    string `yaml:"addr"`    // listen address; default ":9090"
}

// MetricsEnabled returns whether the metrics server should run.
func (m MetricsConfig) MetricsEnabled() bool {
	if m.Enabled == nil {
		return false
	}
	return *m.Enabled
}

// TelemetryConfig configures where run events are sent.
type TelemetryConfig struct {
	Sink     string `yaml:"sink"` // "stdout", "file", "http", "nop"
	FilePath string `yaml:"file_path"`
	Addr     string `yaml:"addr"` // base URL for the http sink
}

// ResultsConfig configures the run history store.
type ResultsConfig struct {
	Dir string `yaml:"dir"` // empty disables history
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // optional JSON log file in addition to stderr
}

// BackendConfig describes a single storage backend.
type BackendConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Path   string            `yaml:"path"` // bucket/container and optional prefix; root for local
	Config map[string]string `yaml:"config"`
}

var validSinks = map[string]bool{"": true, "nop": true, "stdout": true, "file": true, "http": true}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for logical errors.
func (c *Config) Validate() error {
	if c.Run.Passes < 0 {
		return fmt.Errorf("config: run.passes must be positive, got %d", c.Run.Passes)
	}
	if c.Run.Strategy != "" {
		if _, err := ParseStrategy(c.Run.Strategy); err != nil {
			return fmt.Errorf("config: run.strategy: %w", err)
		}
	}
	names := make(map[string]bool)
	for _, be := range c.Backends {
		if be.Name == "" {
			return fmt.Errorf("config: backend name cannot be empty")
		}
		if be.Type == "" {
			return fmt.Errorf("config: backend %q has empty type", be.Name)
		}
		if names[be.Name] {
			return fmt.Errorf("config: duplicate backend name %q", be.Name)
		}
		names[be.Name] = true
	}
	if c.DefaultEndpoint != "" && c.DefaultEndpoint != "default" && !names[c.DefaultEndpoint] {
		return fmt.Errorf("config: default_endpoint %q does not name a backend", c.DefaultEndpoint)
	}
	if !validSinks[c.Telemetry.Sink] {
		return fmt.Errorf("config: unknown telemetry sink %q", c.Telemetry.Sink)
	}
	if c.Telemetry.Sink == "file" && c.Telemetry.FilePath == "" {
		return fmt.Errorf("config: telemetry sink \"file\" requires file_path")
	}
	if c.Telemetry.Sink == "http" && c.Telemetry.Addr == "" {
		return fmt.Errorf("config: telemetry sink \"http\" requires addr")
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
	return nil
}
