// Package bench measures the dispatch overhead of the three thread models on an
// identical synthetic workload.
//
// Every strategy performs workers*iterations units of work. The sequential strategy
// calls the work function directly; the dedicated-thread strategy does one unbuffered
// round trip per worker per iteration; the pooled strategy does the same round trip
// through tasks posted to a bounded GoroutineThreadPool. The harness owns its own
// threads and pool and tears them down before returning.
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Swind/go-thread-models/core"
)

// dummyLoop is the fixed cost added to every counter increment.
const dummyLoop = 100

// ErrInvalidArguments is returned for a non-positive worker, iteration or repeat count.
var ErrInvalidArguments = errors.New("invalid benchmark arguments")

// Config configures one harness run.
type Config struct {
	Workers    int
	Iterations int

	// Repeat runs every strategy this many times. Totals are averaged and the
	// spread of per-operation times is reported.
	Repeat int

	// PoolWorkers sizes the pool of the pooled strategy. Zero means runtime.GOMAXPROCS(0).
	PoolWorkers int

	Logger core.Logger
}

// DefaultConfig returns the settings the interactive demo used: 10 workers, 100 iterations.
func DefaultConfig() Config {
	return Config{
		Workers:    10,
		Iterations: 100,
		Repeat:     1,
		Logger:     core.NewNoOpLogger(),
	}
}

func (c Config) validate() error {
	if c.Workers <= 0 || c.Iterations <= 0 || c.Repeat <= 0 {
		return fmt.Errorf("%w: workers=%d iterations=%d repeat=%d",
			ErrInvalidArguments, c.Workers, c.Iterations, c.Repeat)
	}
	return nil
}

// ops is the number of work units every strategy performs per run.
func (c Config) ops() int {
	return c.Workers * c.Iterations
}

// strategy runs the workload once and returns the time spent dispatching it.
type strategy func(ctx context.Context, cfg Config, counter *core.SharedCounter) (time.Duration, error)

var strategies = []struct {
	kind core.ThreadModelKind
	run  strategy
}{
	{core.KindOneThreadPerTask, runDedicatedThreads},
	{core.KindPooledWorkerTasks, runPooledTasks},
	{core.KindSequentialCooperative, runSequential},
}

// RunBenchmarks runs every strategy once with the given worker and iteration counts.
func RunBenchmarks(ctx context.Context, workers, iterations int) (*Report, error) {
	cfg := DefaultConfig()
	cfg.Workers = workers
	cfg.Iterations = iterations
	return Run(ctx, cfg)
}

// Run executes every strategy cfg.Repeat times and builds the report.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = core.NewNoOpLogger()
	}

	report := &Report{
		Workers:    cfg.Workers,
		Iterations: cfg.Iterations,
		Repeat:     cfg.Repeat,
	}
	for _, s := range strategies {
		result, err := measure(ctx, cfg, s.kind, s.run)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", s.kind, err)
		}
		cfg.Logger.Debug("benchmark finished",
			core.F("kind", s.kind.String()),
			core.F("total", result.Total),
			core.F("per_op", result.PerOp))
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func measure(ctx context.Context, cfg Config, kind core.ThreadModelKind, run strategy) (Result, error) {
	ops := float64(cfg.ops())
	totals := make([]float64, 0, cfg.Repeat)
	perOps := make([]float64, 0, cfg.Repeat)

	for range cfg.Repeat {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		counter := core.NewSharedCounter()
		elapsed, err := run(ctx, cfg, counter)
		if err != nil {
			return Result{}, err
		}
		if got := counter.Load(); got != uint64(cfg.ops()) {
			return Result{}, fmt.Errorf("counter = %d after run, want %d", got, cfg.ops())
		}
		totals = append(totals, elapsed.Seconds())
		perOps = append(perOps, elapsed.Seconds()/ops)
	}

	total := time.Duration(stat.Mean(totals, nil) * float64(time.Second))
	if total <= 0 {
		total = time.Nanosecond
	}
	result := Result{
		Kind:  kind,
		Total: total,
		PerOp: total.Seconds() / ops,
		Runs:  perOps,
	}
	if len(perOps) > 1 {
		result.StdDev = stat.StdDev(perOps, nil)
	}
	return result, nil
}

// doWork is the synthetic unit of work: one counter increment plus a fixed loop.
func doWork(counter *core.SharedCounter) uint64 {
	counter.Inc()
	var s uint64
	for range dummyLoop {
		s++
	}
	return s
}

// sequentialSink keeps the sequential strategy's work results observable.
var sequentialSink atomic.Uint64

// runSequential calls doWork directly, workers*iterations times, on the caller.
func runSequential(ctx context.Context, cfg Config, counter *core.SharedCounter) (time.Duration, error) {
	var sink uint64
	start := time.Now()
	for range cfg.Iterations {
		for range cfg.Workers {
			sink += doWork(counter)
		}
	}
	elapsed := time.Since(start)
	sequentialSink.Store(sink)
	if sink != uint64(dummyLoop)*uint64(cfg.ops()) {
		return elapsed, errors.New("sequential: short run")
	}
	return elapsed, nil
}
