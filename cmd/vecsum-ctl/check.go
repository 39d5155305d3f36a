package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vecsum/vecsum/pkg/backend"
	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/harness"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

func newCheckCmd(load loader) *cobra.Command {
	var (
		strategy string
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Check that a target can be benchmarked",
		Long: `Opens the target exactly as vecsum-bench would and reports its size,
without reading it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := load()
			if err != nil {
				return err
			}
			defer closeLog()

			s, err := config.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = cfg.DefaultEndpoint
			}
			rc := config.RunConfig{Path: args[0], Passes: 1, Strategy: s, Endpoint: endpoint}

			reg, err := backend.NewRegistryFromConfig(cfg.Backends)
			if err != nil {
				return err
			}
			defer reg.Close()

			sess, err := harness.Open(cmd.Context(), rc, harness.Options{Registry: reg, SkipChecksums: cfg.ChecksumsSkipped()})
			if err != nil {
				return err
			}
			n := sess.Length()
			if err := sess.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s is %s (%d chunks), readable with %s\n",
				rc.Path, humanize.IBytes(uint64(n)), n/vecsum.ChunkSize, s)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "mmap", "Read strategy: "+config.StrategyNames)
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Backend name for streaming and zerocopy")
	return cmd
}
