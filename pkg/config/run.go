package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/vecsum/vecsum/pkg/vecsum"
)

// Strategy selects how the harness reads the target.
type Strategy int

const (
	// StrategyStreaming reads through the storage client into a reused buffer.
	StrategyStreaming Strategy = iota
	// StrategyZeroCopy reads through the storage client's zero-copy path.
	StrategyZeroCopy
	// StrategyMemoryMapped maps a local file once and walks the mapping.
	StrategyMemoryMapped
)

func (s Strategy) String() string {
	switch s {
	case StrategyStreaming:
		return "streaming"
	case StrategyZeroCopy:
		return "zerocopy"
	case StrategyMemoryMapped:
		return "mmap"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Remote reports whether the strategy reads through a storage backend.
func (s Strategy) Remote() bool { return s != StrategyMemoryMapped }

var strategyNames = map[string]Strategy{
	"streaming": StrategyStreaming,
	"libhdfs":   StrategyStreaming,
	"normal":    StrategyStreaming,
	"zerocopy":  StrategyZeroCopy,
	"zcr":       StrategyZeroCopy,
	"mmap":      StrategyMemoryMapped,
	"local":     StrategyMemoryMapped,
}

// StrategyNames is the list of canonical strategy names.
const StrategyNames = "streaming, zerocopy, or mmap"

// ParseStrategy maps a case-insensitive name or alias to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	s, ok := strategyNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, &ConfigError{Param: ParamStrategy, Reason: fmt.Sprintf("unknown strategy %q; valid values are %s", name, StrategyNames)}
	}
	return s, nil
}

// Run parameter names. They double as viper keys and flag names.
const (
	ParamPath     = "path"
	ParamPasses   = "passes"
	ParamStrategy = "strategy"
	ParamEndpoint = "endpoint"
	ParamChunk    = "chunk_size"
)

// ConfigError reports a missing or invalid run parameter.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Param, e.Reason)
}

// RunConfig is the validated set of run parameters. It is built once by
// Resolve and passed by value afterwards.
type RunConfig struct {
	Path     string
	Passes   int
	Strategy Strategy
	Endpoint string
}

// Validate checks the run parameters.
func (c RunConfig) Validate() error {
	if c.Path == "" {
		return &ConfigError{Param: ParamPath, Reason: "must be set to the file to read"}
	}
	if c.Passes <= 0 {
		return &ConfigError{Param: ParamPasses, Reason: fmt.Sprintf("must be greater than 0, got %d", c.Passes)}
	}
	if c.Strategy < StrategyStreaming || c.Strategy > StrategyMemoryMapped {
		return &ConfigError{Param: ParamStrategy, Reason: fmt.Sprintf("unknown strategy %d", int(c.Strategy))}
	}
	return nil
}

// BindEnv binds the run parameters to their environment variables.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv(ParamPath, "VECSUM_PATH")
	_ = v.BindEnv(ParamPasses, "VECSUM_PASSES")
	_ = v.BindEnv(ParamStrategy, "VECSUM_TYPE", "VECSUM_STRATEGY")
	_ = v.BindEnv(ParamEndpoint, "VECSUM_RPC_ADDRESS", "VECSUM_ENDPOINT")
}

// SetDefaults installs the file's run parameters as the lowest-precedence
// values in v.
func (c *Config) SetDefaults(v *viper.Viper) {
	if c.Run.Path != "" {
		v.SetDefault(ParamPath, c.Run.Path)
	}
	if c.Run.Passes != 0 {
		v.SetDefault(ParamPasses, c.Run.Passes)
	}
	if c.Run.Strategy != "" {
		v.SetDefault(ParamStrategy, c.Run.Strategy)
	}
	switch {
	case c.Run.Endpoint != "":
		v.SetDefault(ParamEndpoint, c.Run.Endpoint)
	case c.DefaultEndpoint != "":
		v.SetDefault(ParamEndpoint, c.DefaultEndpoint)
	}
}

// Resolve builds a RunConfig from v. The fixed chunk constants are checked
// before any parameter is read.
func Resolve(v *viper.Viper) (RunConfig, error) {
	if err := vecsum.CheckConstants(); err != nil {
		return RunConfig{}, &ConfigError{Param: ParamChunk, Reason: err.Error()}
	}

	var rc RunConfig
	rc.Path = strings.TrimSpace(v.GetString(ParamPath))
	if rc.Path == "" {
		return RunConfig{}, &ConfigError{Param: ParamPath, Reason: "must be set to the file to read (VECSUM_PATH or --path)"}
	}

	raw := strings.TrimSpace(v.GetString(ParamPasses))
	if raw == "" {
		return RunConfig{}, &ConfigError{Param: ParamPasses, Reason: "must be set to the number of passes (VECSUM_PASSES or --passes)"}
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return RunConfig{}, &ConfigError{Param: ParamPasses, Reason: fmt.Sprintf("must be a number greater than 0, got %q", raw)}
	}
	rc.Passes = n

	name := v.GetString(ParamStrategy)
	if strings.TrimSpace(name) == "" {
		return RunConfig{}, &ConfigError{Param: ParamStrategy, Reason: "must be set to " + StrategyNames + " (VECSUM_TYPE or --strategy)"}
	}
	if rc.Strategy, err = ParseStrategy(name); err != nil {
		return RunConfig{}, err
	}

	rc.Endpoint = strings.TrimSpace(v.GetString(ParamEndpoint))
	if rc.Endpoint == "" {
		rc.Endpoint = "default"
	}
	return rc, rc.Validate()
}
