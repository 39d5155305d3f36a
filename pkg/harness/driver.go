package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vecsum/vecsum/pkg/metrics"
	"github.com/vecsum/vecsum/pkg/stats"
	"github.com/vecsum/vecsum/pkg/vecsum"
)

// State is a run driver state.
type State int

const (
	StateInit State = iota
	StateConnected
	StatePassLoop
	StateReporting
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnected:
		return "connected"
	case StatePassLoop:
		return "pass_loop"
	case StateReporting:
		return "reporting"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PassResult is the outcome of one pass.
type PassResult struct {
	Index    int
	Sum      float64
	Bytes    int64
	Duration time.Duration
	Stats    stats.ReadStatistics // delta for this pass
}

// Result is the outcome of a completed run.
type Result struct {
	ID        string
	Strategy  string
	Path      string
	Endpoint  string
	FileBytes int64
	Passes    []PassResult
	Sample    stats.Sample
	Stats     stats.ReadStatistics // delta for the whole run
	State     State
}

type driver struct {
	ctx   context.Context
	sess  *Session
	strat Strategy
	out   io.Writer
	state State
}

func (d *driver) transition(to State) {
	slog.DebugContext(d.ctx, "Driver state", "component", "harness", "from", d.state, "to", to)
	d.state = to
}

// Run makes the configured number of passes over the session's target with
// strat, writing a line per pass and the stopwatch report to out. The
// stopwatch covers the passes only. The first error aborts the run; nothing
// is retried. The session is not closed.
func Run(ctx context.Context, sess *Session, strat Strategy, out io.Writer) (*Result, error) {
	d := &driver{ctx: ctx, sess: sess, strat: strat, out: out, state: StateInit}
	res, err := d.run()
	status := "ok"
	if err != nil {
		status = "error"
		d.transition(StateAborted)
	}
	metrics.RunsTotal.WithLabelValues(strat.Name(), status).Inc()
	if res != nil {
		res.State = d.state
	}
	return res, err
}

func (d *driver) run() (*Result, error) {
	if d.sess.closed {
		return nil, fmt.Errorf("harness.Run: session closed")
	}
	cfg := d.sess.Config()
	d.transition(StateConnected)

	res := &Result{
		ID:        uuid.NewString(),
		Strategy:  d.strat.Name(),
		Path:      cfg.Path,
		Endpoint:  cfg.Endpoint,
		FileBytes: d.sess.Length(),
		Passes:    make([]PassResult, 0, cfg.Passes),
	}
	startStats := d.sess.Stats()

	d.transition(StatePassLoop)
	watch := stats.StartStopwatch()
	for pass := 0; pass < cfg.Passes; pass++ {
		if pass > 0 {
			if err := d.strat.Reset(); err != nil {
				return nil, err
			}
		}
		pr, err := d.pass(pass)
		if err != nil {
			return nil, err
		}
		res.Passes = append(res.Passes, pr)
		if _, err := fmt.Fprintf(d.out, "finished %s pass %d.  sum = %g\n", res.Strategy, pass, pr.Sum); err != nil {
			return nil, fmt.Errorf("harness.Run: write report: %w", err)
		}
	}
	res.Sample = watch.Stop(d.sess.Length() * int64(cfg.Passes))

	d.transition(StateReporting)
	res.Stats = d.sess.Stats().Sub(startStats)
	if err := res.Report(d.out); err != nil {
		return nil, fmt.Errorf("harness.Run: write report: %w", err)
	}
	res.observe()
	d.transition(StateClosed)
	return res, nil
}

// pass reads the target once from the current offset, reducing each chunk.
func (d *driver) pass(index int) (PassResult, error) {
	start := time.Now()
	before := d.sess.Stats()
	want := d.sess.Length()

	var sum float64
	var got int64
	for {
		if err := d.ctx.Err(); err != nil {
			return PassResult{}, fmt.Errorf("harness.Run: pass %d: %w", index, err)
		}
		c, err := d.strat.NextChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return PassResult{}, err
		}
		sum += vecsum.Sum(c.Data)
		got += c.Bytes()
		if err := d.strat.Release(c); err != nil {
			return PassResult{}, err
		}
		if got > want {
			return PassResult{}, &ReadError{Kind: ReadOverrun, Strategy: d.strat.Name(), Pass: index, Offset: got, Got: got, Want: want}
		}
	}
	if got < want {
		return PassResult{}, &ReadError{Kind: ReadTruncated, Strategy: d.strat.Name(), Pass: index, Offset: got, Got: got, Want: want}
	}
	return PassResult{
		Index:    index,
		Sum:      sum,
		Bytes:    got,
		Duration: time.Since(start),
		Stats:    d.sess.Stats().Sub(before),
	}, nil
}
