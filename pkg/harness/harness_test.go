package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecsum/vecsum/pkg/backend"
	"github.com/vecsum/vecsum/pkg/config"
	"github.com/vecsum/vecsum/pkg/dataset"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

var allStrategies = []config.Strategy{
	config.StrategyStreaming,
	config.StrategyZeroCopy,
	config.StrategyMemoryMapped,
}

func writeTarget(t *testing.T, chunks int, fill dataset.Fill) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vec.bin")
	_, err := dataset.WriteFile(path, chunks, fill)
	require.NoError(t, err)
	return path
}

func writeRaw(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func runConfig(path string, passes int, s config.Strategy) config.RunConfig {
	return config.RunConfig{Path: path, Passes: passes, Strategy: s, Endpoint: backend.DefaultEndpoint}
}

func openAndRun(t *testing.T, cfg config.RunConfig, opts Options) (*Result, string) {
	t.Helper()
	sess, err := Open(context.Background(), cfg, opts)
	require.NoError(t, err)
	defer func() { require.NoError(t, sess.Close()) }()

	strat, err := sess.NewStrategy()
	require.NoError(t, err)
	var out bytes.Buffer
	res, err := Run(context.Background(), sess, strat, &out)
	require.NoError(t, err)
	return res, out.String()
}

func TestRun_SixteenMiBOfOnes(t *testing.T) {
	path := writeTarget(t, 2, dataset.Constant(1.0))

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			res, out := openAndRun(t, runConfig(path, 1, s), Options{SkipChecksums: true})

			require.Len(t, res.Passes, 1)
			assert.Equal(t, 2097152.0, res.Passes[0].Sum)
			assert.Equal(t, int64(16777216), res.Passes[0].Bytes)
			assert.Equal(t, int64(16777216), res.TotalBytes())
			assert.Equal(t, StateClosed, res.State)
			assert.Equal(t, s.String(), res.Strategy)

			assert.Contains(t, out, "finished "+s.String()+" pass 0.  sum = 2.097152e+06\n")
			assert.Contains(t, out, "stopwatch: took ")
			assert.Contains(t, out, "to read 16777216 bytes, for ")
		})
	}
}

func TestRun_StatisticsBounded(t *testing.T) {
	path := writeTarget(t, 2, dataset.Constant(1.0))

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			res, _ := openAndRun(t, runConfig(path, 2, s), Options{SkipChecksums: true})
			for _, p := range res.Passes {
				st := p.Stats
				assert.GreaterOrEqual(t, st.TotalBytes, int64(0))
				assert.GreaterOrEqual(t, st.LocalBytes, int64(0))
				assert.GreaterOrEqual(t, st.ShortCircuitBytes, int64(0))
				assert.GreaterOrEqual(t, st.ZeroCopyBytes, int64(0))
				assert.LessOrEqual(t, st.TierBytes(), st.TotalBytes)
				assert.Equal(t, p.Bytes, st.TotalBytes)
			}
			assert.Equal(t, res.TotalBytes(), res.Stats.TotalBytes)
		})
	}
}

func TestRun_ZeroCopyTier(t *testing.T) {
	path := writeTarget(t, 2, dataset.Constant(1.0))

	res, _ := openAndRun(t, runConfig(path, 1, config.StrategyZeroCopy), Options{SkipChecksums: true})
	assert.Equal(t, 2097152.0, res.Passes[0].Sum)
	assert.Positive(t, res.Stats.ZeroCopyBytes)
	assert.Equal(t, res.Stats.TotalBytes, res.Stats.ZeroCopyBytes)
}

func TestRun_ZeroCopyWithChecksumsCopies(t *testing.T) {
	path := writeTarget(t, 2, dataset.Constant(1.0))

	sess, err := Open(context.Background(), runConfig(path, 1, config.StrategyZeroCopy), Options{})
	require.NoError(t, err)
	defer sess.Close()
	strat, err := sess.NewStrategy()
	require.NoError(t, err)

	res, err := Run(context.Background(), sess, strat, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2097152.0, res.Passes[0].Sum)
	assert.Zero(t, res.Stats.ZeroCopyBytes)
	assert.Equal(t, res.Stats.TotalBytes, res.Stats.ShortCircuitBytes)
	assert.Zero(t, sess.Pool().Outstanding())
	assert.Equal(t, 1, sess.Pool().Size(), "one pooled buffer should be reused for every chunk")
}

func TestRun_ResetReproducesSums(t *testing.T) {
	fill := dataset.Sequence()
	path := writeTarget(t, 2, fill)

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			res, out := openAndRun(t, runConfig(path, 3, s), Options{SkipChecksums: true})
			require.Len(t, res.Passes, 3)
			for _, p := range res.Passes {
				assert.Equal(t, fill.ExpectedSum(2), p.Sum)
			}
			assert.Equal(t, 3*dataset.Size(2), res.TotalBytes())
			assert.Equal(t, 3, strings.Count(out, "finished "+s.String()+" pass "))
		})
	}
}

func TestRun_BytesScaleWithPasses(t *testing.T) {
	path := writeTarget(t, 1, dataset.Constant(2.0))

	one, _ := openAndRun(t, runConfig(path, 1, config.StrategyStreaming), Options{})
	two, _ := openAndRun(t, runConfig(path, 2, config.StrategyStreaming), Options{})
	assert.Equal(t, 2*one.TotalBytes(), two.TotalBytes())
}

func TestOpen_Unaligned(t *testing.T) {
	path := writeRaw(t, vecsum.ChunkSize+1)

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			sess, err := Open(context.Background(), runConfig(path, 1, s), Options{})
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, ErrUnaligned)

			var re *ResourceError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, int64(vecsum.ChunkSize+1), re.Size)
			assert.Contains(t, err.Error(), "not a multiple of 8388608")
		})
	}
}

func TestOpen_EmptyAndMissing(t *testing.T) {
	empty := writeRaw(t, 0)
	missing := filepath.Join(t.TempDir(), "missing.bin")

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			_, err := Open(context.Background(), runConfig(empty, 1, s), Options{})
			assert.ErrorIs(t, err, ErrEmptyTarget)

			_, err = Open(context.Background(), runConfig(missing, 1, s), Options{})
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NotErrorIs(t, err, ErrUnaligned)
		})
	}
}

func TestOpen_Directory(t *testing.T) {
	dir := t.TempDir()
	for _, s := range allStrategies {
		_, err := Open(context.Background(), runConfig(dir, 1, s), Options{})
		var re *ResourceError
		require.ErrorAs(t, err, &re, s.String())
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), config.RunConfig{Path: "/x", Passes: 0}, Options{})
	var ce *config.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, config.ParamPasses, ce.Param)
}

func TestOpen_NamedEndpoint(t *testing.T) {
	path := writeTarget(t, 1, dataset.Constant(1.0))

	reg := backend.NewRegistry()
	be, err := backend.NewRcloneBackend("data", "local", filepath.Dir(path), map[string]string{})
	require.NoError(t, err)
	require.NoError(t, reg.Register(be))
	defer reg.Close()

	cfg := config.RunConfig{Path: filepath.Base(path), Passes: 1, Strategy: config.StrategyStreaming, Endpoint: "data"}
	res, _ := openAndRun(t, cfg, Options{Registry: reg})
	assert.Equal(t, dataset.Constant(1.0).ExpectedSum(1), res.Passes[0].Sum)
	assert.Equal(t, "data", res.Endpoint)

	cfg.Endpoint = "nowhere"
	_, err = Open(context.Background(), cfg, Options{Registry: reg})
	var re *ResourceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ResourceOpen, re.Kind)
}

func TestOpen_RelativePathOnDefaultEndpoint(t *testing.T) {
	path := writeTarget(t, 1, dataset.Constant(1.0))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(path)))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	res, _ := openAndRun(t, runConfig("vec.bin", 1, config.StrategyStreaming), Options{})
	assert.Equal(t, dataset.Constant(1.0).ExpectedSum(1), res.Passes[0].Sum)
}

func TestSession_CloseIdempotent(t *testing.T) {
	path := writeTarget(t, 1, dataset.Constant(1.0))

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			sess, err := Open(context.Background(), runConfig(path, 1, s), Options{})
			require.NoError(t, err)
			strat, err := sess.NewStrategy()
			require.NoError(t, err)

			require.NoError(t, sess.Close())
			require.NoError(t, sess.Close())

			_, err = sess.NewStrategy()
			assert.Error(t, err)
			_, err = Run(context.Background(), sess, strat, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestSession_CloseReturnsBorrowedBuffers(t *testing.T) {
	path := writeTarget(t, 2, dataset.Constant(1.0))

	sess, err := Open(context.Background(), runConfig(path, 1, config.StrategyZeroCopy), Options{})
	require.NoError(t, err)
	strat, err := sess.NewStrategy()
	require.NoError(t, err)

	c, err := strat.NextChunk()
	require.NoError(t, err)
	assert.Equal(t, vecsum.ChunkSize/vecsum.ScalarSize, c.Len())
	assert.Equal(t, 1, sess.Pool().Outstanding())

	require.NoError(t, sess.Close())
	assert.Zero(t, sess.Pool().Outstanding())
}

func TestResult_RunEvent(t *testing.T) {
	path := writeTarget(t, 1, dataset.Constant(1.0))
	res, _ := openAndRun(t, runConfig(path, 2, config.StrategyMemoryMapped), Options{})

	evt := res.RunEvent()
	assert.NotEmpty(t, evt.RunID)
	assert.Equal(t, res.ID, evt.RunID)
	assert.Equal(t, "mmap", evt.Strategy)
	assert.Equal(t, path, evt.Path)
	assert.Equal(t, dataset.Size(1), evt.FileBytes)
	assert.Equal(t, 2*dataset.Size(1), evt.TotalBytes)
	require.Len(t, evt.Passes, 2)
	assert.Equal(t, 1, evt.Passes[1].Index)
	assert.Equal(t, res.Passes[1].Sum, evt.Passes[1].Sum)
	assert.Equal(t, res.Stats, evt.Stats)
}

func TestErrorKinds(t *testing.T) {
	err := error(&ReadError{Kind: ReadPartial, Strategy: "streaming", Pass: 1, Offset: 8, Got: 4, Want: 8})
	assert.ErrorIs(t, err, ErrPartial)
	assert.NotErrorIs(t, err, ErrPartialZeroCopy)
	assert.Equal(t, "harness: streaming pass 1: partial read at offset 8: got 4 of 8 bytes", err.Error())

	cause := errors.New("boom")
	err = &ReadError{Kind: ReadIO, Strategy: "zerocopy", Err: cause}
	assert.ErrorIs(t, err, cause)

	err = &AllocationError{What: "file mapping", Size: 16, Err: cause}
	assert.ErrorIs(t, err, cause)
	var ae *AllocationError
	assert.ErrorAs(t, err, &ae)
}
