package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/results"
	"github.com/vecsum/vecsum/pkg/telemetry"
)

func newHistoryCmd(load loader) *cobra.Command {
	var (
		strategy   string
		path       string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded benchmark runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := load()
			if err != nil {
				return err
			}
			defer closeLog()
			if cfg.Results.Dir == "" {
				return errors.New("no results.dir configured; pass --config with a results section")
			}

			if strategy != "" {
				s, err := config.ParseStrategy(strategy)
				if err != nil {
					return err
				}
				strategy = s.String()
			}

			store, err := results.Open(cfg.Results.Dir)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(results.Filter{Strategy: strategy, Path: path, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			return printRuns(out, runs)
		},
	}

	f := cmd.Flags()
	f.StringVar(&strategy, "strategy", "", "Only runs of this strategy")
	f.StringVar(&path, "path", "", "Only runs of this target")
	f.IntVar(&limit, "limit", 20, "Maximum number of runs (0 for all)")
	f.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func printRuns(w io.Writer, runs []telemetry.RunEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tWHEN\tSTRATEGY\tPASSES\tREAD\tSECONDS\tGIB/S\tZERO-COPY\tPATH")
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%.3f\t%.3f\t%s\t%s\n",
			id,
			humanize.RelTime(r.Timestamp, time.Now(), "ago", "from now"),
			r.Strategy,
			len(r.Passes),
			humanize.IBytes(uint64(r.TotalBytes)),
			r.ElapsedSec,
			r.GiBPerSec,
			humanize.IBytes(uint64(r.Stats.ZeroCopyBytes)),
			r.Path,
		)
	}
	return tw.Flush()
}
