// Package main provides the vecsum-ctl CLI for preparing targets and
// inspecting run history.
//
// Usage:
//
//	vecsum-ctl gen <path> [--chunks N | --size 64MiB] [--sequence | --value 1] [--endpoint <name>] [--config <file>]
//	vecsum-ctl check <path> [--strategy mmap] [--endpoint <name>] [--config <file>]
//	vecsum-ctl history [--strategy <name>] [--path <file>] [--limit 20] [--json] [--config <file>]
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/logging"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vecsum-ctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "vecsum-ctl",
		Short:         "Prepare benchmark targets and inspect run history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to environment file (YAML)")

	load := func() (*config.Config, func() error, error) {
		cfg := config.Default()
		if configPath != "" {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return nil, nil, err
			}
		}
		closeLog, err := logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.File)
		if err != nil {
			return nil, nil, err
		}
		return cfg, closeLog, nil
	}

	cmd.AddCommand(newGenCmd(load), newCheckCmd(load), newHistoryCmd(load))
	return cmd
}

// loader reads the environment file named by --config and sets up logging.
type loader func() (*config.Config, func() error, error)
