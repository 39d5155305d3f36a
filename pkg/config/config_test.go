package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	t.Setenv("VECSUM_TEST_BUCKET", "bench-data")
	content := `
default_endpoint: s3_bench
skip_checksums: false
backends:
  - name: s3_bench
    type: s3
    path: ${VECSUM_TEST_BUCKET}/vectors
    config:
      provider: Minio
      endpoint: http://127.0.0.1:9000
telemetry:
  sink: file
  file_path: /tmp/vecsum-events.jsonl
results:
  dir: /var/lib/vecsum
logging:
  level: DEBUG
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultEndpoint != "s3_bench" {
		t.Errorf("DefaultEndpoint = %q, want s3_bench", cfg.DefaultEndpoint)
	}
	if cfg.ChecksumsSkipped() {
		t.Error("skip_checksums: false not honoured")
	}
	if len(cfg.Backends) != 1 {
		t.Fatalf("Backends len = %d, want 1", len(cfg.Backends))
	}
	if cfg.Backends[0].Path != "bench-data/vectors" {
		t.Errorf("Backend path = %q, want bench-data/vectors", cfg.Backends[0].Path)
	}
	if cfg.Backends[0].Config["endpoint"] != "http://127.0.0.1:9000" {
		t.Errorf("Backend endpoint = %q", cfg.Backends[0].Config["endpoint"])
	}
	if cfg.Telemetry.Sink != "file" || cfg.Results.Dir != "/var/lib/vecsum" {
		t.Errorf("telemetry/results = %+v / %+v", cfg.Telemetry, cfg.Results)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backends: []\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DefaultEndpoint != "default" {
		t.Errorf("Default DefaultEndpoint = %q, want default", cfg.DefaultEndpoint)
	}
	if !cfg.ChecksumsSkipped() {
		t.Error("skip_checksums should default to true")
	}
	if cfg.Metrics.MetricsEnabled() {
		t.Error("metrics should default to disabled")
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Default Metrics.Addr = %q, want :9090", cfg.Metrics.Addr)
	}
	if cfg.Telemetry.Sink != "nop" {
		t.Errorf("Default Telemetry.Sink = %q, want nop", cfg.Telemetry.Sink)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Default Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_MetricsEnabled(t *testing.T) {
	content := `
metrics:
  enabled: true
  addr: ":19090"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Metrics.MetricsEnabled() {
		t.Error("expected metrics to be enabled")
	}
	if cfg.Metrics.Addr != ":19090" {
		t.Errorf("Metrics.Addr = %q, want :19090", cfg.Metrics.Addr)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "backends: [\n")); err == nil {
		t.Error("Load of malformed YAML should fail")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"1024", 1024},
		{"4MB", 4 * 1024 * 1024},
		{"8MiB", 8 * 1024 * 1024},
		{"16mb", 16 * 1024 * 1024},
		{"2TB", 2 * 1024 * 1024 * 1024 * 1024},
		{"500GB", 500 * 1024 * 1024 * 1024},
		{"1KB", 1024},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if err != nil {
			t.Errorf("ParseSize(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseSize_Invalid(t *testing.T) {
	_, err := ParseSize("invalid")
	if err == nil {
		t.Error("ParseSize(\"invalid\") should return error")
	}
}

func TestValidate_DuplicateBackendName(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{
		{Name: "a", Type: "local"},
		{Name: "a", Type: "s3"},
	}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected duplicate backend name error")
	}
}

func TestValidate_EmptyBackendName(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Type: "local"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected empty backend name error")
	}
}

func TestValidate_EmptyBackendType(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "a"}}}
	if err := cfg.Validate(); err == nil {
		t.Error("expected empty backend type error")
	}
}

func TestValidate_UnknownDefaultEndpoint(t *testing.T) {
	cfg := Config{DefaultEndpoint: "missing"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected default_endpoint error")
	}
}

func TestValidate_Telemetry(t *testing.T) {
	tests := []struct {
		tc      TelemetryConfig
		wantErr bool
	}{
		{TelemetryConfig{Sink: "stdout"}, false},
		{TelemetryConfig{Sink: "file"}, true},
		{TelemetryConfig{Sink: "file", FilePath: "/tmp/x"}, false},
		{TelemetryConfig{Sink: "http"}, true},
		{TelemetryConfig{Sink: "http", Addr: "http://collector:8080"}, false},
		{TelemetryConfig{Sink: "kafka"}, true},
	}
	for _, tt := range tests {
		cfg := Config{Telemetry: tt.tc}
		if err := cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) err = %v, wantErr %v", tt.tc, err, tt.wantErr)
		}
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := Config{
		DefaultEndpoint: "remote",
		Backends:        []BackendConfig{{Name: "remote", Type: "sftp"}},
		Logging:         LoggingConfig{Level: "warn"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ---- RunConfig tests ----

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  Strategy
	}{
		{"streaming", StrategyStreaming},
		{"LIBHDFS", StrategyStreaming},
		{"normal", StrategyStreaming},
		{"ZeroCopy", StrategyZeroCopy},
		{"zcr", StrategyZeroCopy},
		{" mmap ", StrategyMemoryMapped},
		{"Local", StrategyMemoryMapped},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.input)
		if err != nil {
			t.Errorf("ParseStrategy(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	_, err := ParseStrategy("hdfs")
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Param != ParamStrategy {
		t.Errorf("ParseStrategy(hdfs) err = %v, want ConfigError on strategy", err)
	}
}

func TestStrategyString(t *testing.T) {
	if StrategyZeroCopy.String() != "zerocopy" || StrategyMemoryMapped.String() != "mmap" {
		t.Error("unexpected strategy names")
	}
	if !StrategyStreaming.Remote() || StrategyMemoryMapped.Remote() {
		t.Error("Remote() wrong")
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	BindEnv(v)
	return v
}

func TestResolve_FromEnv(t *testing.T) {
	t.Setenv("VECSUM_PATH", "/data/vec.bin")
	t.Setenv("VECSUM_PASSES", "3")
	t.Setenv("VECSUM_TYPE", "ZCR")
	t.Setenv("VECSUM_RPC_ADDRESS", "s3_bench")

	rc, err := Resolve(newViper())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := RunConfig{Path: "/data/vec.bin", Passes: 3, Strategy: StrategyZeroCopy, Endpoint: "s3_bench"}
	if rc != want {
		t.Errorf("Resolve = %+v, want %+v", rc, want)
	}
}

func TestResolve_DefaultEndpoint(t *testing.T) {
	v := viper.New()
	v.Set(ParamPath, "/data/vec.bin")
	v.Set(ParamPasses, 1)
	v.Set(ParamStrategy, "streaming")

	rc, err := Resolve(v)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Endpoint != "default" {
		t.Errorf("Endpoint = %q, want default", rc.Endpoint)
	}
}

func TestResolve_OverrideBeatsEnv(t *testing.T) {
	t.Setenv("VECSUM_PATH", "/env/path")
	t.Setenv("VECSUM_PASSES", "1")
	t.Setenv("VECSUM_TYPE", "mmap")

	v := newViper()
	v.Set(ParamPath, "/flag/path")
	rc, err := Resolve(v)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Path != "/flag/path" {
		t.Errorf("Path = %q, want /flag/path", rc.Path)
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name      string
		set       map[string]any
		wantParam string
	}{
		{"missing path", map[string]any{ParamPasses: "1", ParamStrategy: "mmap"}, ParamPath},
		{"missing passes", map[string]any{ParamPath: "/x", ParamStrategy: "mmap"}, ParamPasses},
		{"zero passes", map[string]any{ParamPath: "/x", ParamPasses: "0", ParamStrategy: "mmap"}, ParamPasses},
		{"negative passes", map[string]any{ParamPath: "/x", ParamPasses: "-2", ParamStrategy: "mmap"}, ParamPasses},
		{"garbage passes", map[string]any{ParamPath: "/x", ParamPasses: "two", ParamStrategy: "mmap"}, ParamPasses},
		{"missing strategy", map[string]any{ParamPath: "/x", ParamPasses: "1"}, ParamStrategy},
		{"bad strategy", map[string]any{ParamPath: "/x", ParamPasses: "1", ParamStrategy: "fast"}, ParamStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Resolve(v)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			if ce.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", ce.Param, tt.wantParam)
			}
			if !strings.Contains(err.Error(), tt.wantParam) {
				t.Errorf("message %q does not name %q", err.Error(), tt.wantParam)
			}
		})
	}
}

func TestRunConfig_Validate(t *testing.T) {
	ok := RunConfig{Path: "/x", Passes: 1, Strategy: StrategyStreaming}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid config: %v", err)
	}
	bad := ok
	bad.Passes = 0
	if err := bad.Validate(); err == nil {
		t.Error("passes=0 should be rejected")
	}
	bad = ok
	bad.Strategy = Strategy(7)
	if err := bad.Validate(); err == nil {
		t.Error("unknown strategy should be rejected")
	}
}

func TestResolve_FileDefaults(t *testing.T) {
	content := `
default_endpoint: remote
backends:
  - name: remote
    type: sftp
run:
  path: /file/path
  passes: 4
  strategy: zcr
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("VECSUM_PASSES", "2")

	v := newViper()
	cfg.SetDefaults(v)
	v.Set(ParamStrategy, "mmap")

	rc, err := Resolve(v)
	if err != nil {
		t.Fatal(err)
	}
	want := RunConfig{Path: "/file/path", Passes: 2, Strategy: StrategyMemoryMapped, Endpoint: "remote"}
	if rc != want {
		t.Errorf("Resolve = %+v, want %+v", rc, want)
	}
}
