package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vecsum/vecsum/pkg/backend"
	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/dataset"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

func newGenCmd(load loader) *cobra.Command {
	var (
		chunks   int
		size     string
		sequence bool
		value    float64
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "gen <path>",
		Short: "Write a target file of doubles",
		Long: `Writes a file whose length is a whole number of 8 MiB chunks, filled with
a constant or with ascending indices. The expected per-pass sum is printed so
a benchmark run can be checked against it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := load()
			if err != nil {
				return err
			}
			defer closeLog()

			n, err := chunkCount(chunks, size)
			if err != nil {
				return err
			}
			fill := dataset.Constant(value)
			if sequence {
				fill = dataset.Sequence()
			}

			path := args[0]
			var written int64
			if endpoint == "" {
				written, err = dataset.WriteFile(path, n, fill)
			} else {
				var reg *backend.Registry
				if reg, err = backend.NewRegistryFromConfig(cfg.Backends); err != nil {
					return err
				}
				defer reg.Close()
				written, err = genRemote(cmd.Context(), reg, endpoint, path, n, fill)
			}
			if err != nil {
				return err
			}

			slog.Debug("Target written", "component", "ctl", "path", path, "bytes", written)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %d chunks) to %s\n",
				humanize.IBytes(uint64(written)), written, n, path)
			fmt.Fprintf(cmd.OutOrStdout(), "expected sum per pass: %g\n", fill.ExpectedSum(n))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&chunks, "chunks", 0, "Number of 8 MiB chunks")
	f.StringVar(&size, "size", "", "Target size, e.g. 64MiB or 2GB; must be a multiple of 8 MiB")
	f.BoolVar(&sequence, "sequence", false, "Write 0, 1, 2, ... instead of a constant")
	f.Float64Var(&value, "value", 1, "Constant written when --sequence is not set")
	f.StringVar(&endpoint, "endpoint", "", "Write through this configured backend instead of the local filesystem")
	cmd.MarkFlagsMutuallyExclusive("chunks", "size")
	return cmd
}

// chunkCount resolves --chunks or --size into a positive number of chunks.
func chunkCount(chunks int, size string) (int, error) {
	if size != "" {
		b, err := config.ParseSize(size)
		if err != nil {
			return 0, err
		}
		if b <= 0 || b%vecsum.ChunkSize != 0 {
			return 0, fmt.Errorf("--size %s is not a positive multiple of %s", size, humanize.IBytes(vecsum.ChunkSize))
		}
		return int(b / vecsum.ChunkSize), nil
	}
	if chunks <= 0 {
		return 0, fmt.Errorf("--chunks must be greater than 0, got %d", chunks)
	}
	return chunks, nil
}

func genRemote(ctx context.Context, reg *backend.Registry, endpoint, path string, chunks int, fill dataset.Fill) (int64, error) {
	be, err := reg.Resolve(endpoint)
	if err != nil {
		return 0, err
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := dataset.Write(pw, chunks, fill)
		pw.CloseWithError(err)
	}()
	size := dataset.Size(chunks)
	if err := be.Write(ctx, path, pr, size); err != nil {
		pr.CloseWithError(err)
		return 0, err
	}
	return size, nil
}
