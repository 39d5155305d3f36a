// Package main runs one read-and-reduce benchmark over a target file.
//
// Usage:
//
//	VECSUM_PATH=/data/vec.bin VECSUM_PASSES=3 VECSUM_TYPE=zcr vecsum-bench
//	vecsum-bench --path /data/vec.bin --passes 3 --strategy mmap
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vecsum/vecsum/pkg/backend"
	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/harness"
	"github.com/vecsum/vecsum/pkg/logging"
	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/results"
	"github.com/vecsum/vecsum/pkg/telemetry"
)

// Process exit codes.
const (
	exitOK         = 0
	exitOther      = 1
	exitConfig     = 2
	exitResource   = 3
	exitRead       = 4
	exitAllocation = 5
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "vecsum-bench: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		ce *config.ConfigError
		re *harness.ResourceError
		rd *harness.ReadError
		ae *harness.AllocationError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce):
		return exitConfig
	case errors.As(err, &re):
		return exitResource
	case errors.As(err, &rd):
		return exitRead
	case errors.As(err, &ae):
		return exitAllocation
	default:
		return exitOther
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:   "vecsum-bench",
		Short: "Measure sequential read throughput of a file",
		Long: `Reads a file of doubles through one of three strategies (streaming,
zerocopy or mmap), sums every chunk and reports the sum per pass and the
overall throughput in GiB/s.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, v, configPath, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to environment file (YAML)")
	f.String(config.ParamPath, "", "File to read (VECSUM_PATH)")
	f.Int(config.ParamPasses, 0, "Number of passes (VECSUM_PASSES)")
	f.String(config.ParamStrategy, "", "Read strategy: "+config.StrategyNames+" (VECSUM_TYPE)")
	f.String(config.ParamEndpoint, "", "Backend name to read through (VECSUM_RPC_ADDRESS)")
	for _, name := range []string{config.ParamPath, config.ParamPasses, config.ParamStrategy, config.ParamEndpoint} {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
	config.BindEnv(v)
	return cmd
}

func runBench(cmd *cobra.Command, v *viper.Viper, configPath string, stdout, stderr io.Writer) (err error) {
	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return &config.ConfigError{Param: "config", Reason: err.Error()}
		}
	}

	closeLog, err := logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return &config.ConfigError{Param: "logging", Reason: err.Error()}
	}
	defer closeLog()

	cfg.SetDefaults(v)
	rc, err := config.Resolve(v)
	if err != nil {
		return err
	}

	if cfg.Metrics.MetricsEnabled() {
		if !rc.Strategy.Remote() {
			metrics.RegisterHealthCheck("target", metrics.FileHealthCheck(rc.Path))
		}
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			if err := metrics.MetricsServer(cfg.Metrics.Addr, stop); err != nil {
				slog.Error("metrics server error", "component", "metrics", "error", err)
			}
		}()
		slog.Info("Metrics server started", "component", "metrics", "addr", cfg.Metrics.Addr)
	}

	reg, err := backend.NewRegistryFromConfig(cfg.Backends)
	if err != nil {
		return &config.ConfigError{Param: "backends", Reason: err.Error()}
	}
	defer func() {
		if cerr := reg.Close(); cerr != nil {
			slog.Warn("closing backends", "error", cerr)
		}
	}()

	ctx := cmd.Context()
	sess, err := harness.Open(ctx, rc, harness.Options{
		Registry:      reg,
		SkipChecksums: cfg.ChecksumsSkipped(),
	})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.Close())
	}()

	strat, err := sess.NewStrategy()
	if err != nil {
		return err
	}
	res, err := harness.Run(ctx, sess, strat, stdout)
	if err != nil {
		return err
	}

	publish(cfg, res)
	return nil
}

// publish sends the finished run to the telemetry sink and the history
// store. Failures are logged; the measurement itself already succeeded.
func publish(cfg *config.Config, res *harness.Result) {
	evt := res.RunEvent()

	tc, err := telemetry.NewCollector(telemetry.CollectorConfig{
		Sink:     cfg.Telemetry.Sink,
		FilePath: cfg.Telemetry.FilePath,
		Addr:     cfg.Telemetry.Addr,
	})
	if err != nil {
		slog.Warn("telemetry collector failed to initialize", "component", "telemetry", "error", err)
	} else {
		tc.Record(evt)
		if err := tc.Close(); err != nil {
			slog.Warn("telemetry emit failed", "component", "telemetry", "error", err)
		}
	}

	if cfg.Results.Dir == "" {
		return
	}
	store, err := results.Open(cfg.Results.Dir)
	if err != nil {
		slog.Warn("run history unavailable", "component", "results", "error", err)
		return
	}
	defer store.Close()
	if err := store.Record(evt); err != nil {
		slog.Warn("run not recorded", "component", "results", "error", err)
	}
}
