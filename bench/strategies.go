package bench

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-thread-models/core"
)

// roundTrips drives iterations rounds: dispatch to every worker, then wait for one
// completion per worker. Cancellation is only checked between rounds so no worker is
// ever left blocked on a completion nobody reads.
func roundTrips(ctx context.Context, cfg Config, dispatch func(worker int), done <-chan struct{}) error {
	for range cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		for w := range cfg.Workers {
			dispatch(w)
		}
		for range cfg.Workers {
			<-done
		}
	}
	return nil
}

// runDedicatedThreads gives every worker its own OS thread and an unbuffered tick
// channel. Completions come back on one unbuffered channel.
func runDedicatedThreads(ctx context.Context, cfg Config, counter *core.SharedCounter) (time.Duration, error) {
	done := make(chan struct{})
	ticks := make([]chan struct{}, cfg.Workers)

	var g errgroup.Group
	for w := range ticks {
		tick := make(chan struct{})
		ticks[w] = tick
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			var sink uint64
			for range tick {
				sink += doWork(counter)
				done <- struct{}{}
			}
			if sink != uint64(dummyLoop)*uint64(cfg.Iterations) {
				return fmt.Errorf("dedicated worker %d: short run", w)
			}
			return nil
		})
	}

	start := time.Now()
	err := roundTrips(ctx, cfg, func(w int) { ticks[w] <- struct{}{} }, done)
	elapsed := time.Since(start)

	for _, tick := range ticks {
		close(tick)
	}
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return elapsed, err
}

// runPooledTasks posts one task per worker per round to a bounded pool. Each worker
// is a SequencedTaskRunner fed by a capacity-1 tick channel, the same shape as a
// pooled foreground unit.
func runPooledTasks(ctx context.Context, cfg Config, counter *core.SharedCounter) (time.Duration, error) {
	pool := core.NewGoroutineThreadPoolWithConfig("bench", cfg.PoolWorkers, &core.TaskSchedulerConfig{
		PanicHandler:        &core.LoggingPanicHandler{Logger: cfg.Logger},
		RejectedTaskHandler: &core.LoggingRejectedTaskHandler{Logger: cfg.Logger},
	})
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{}, cfg.Workers)
	runners := make([]*core.SequencedTaskRunner, cfg.Workers)
	ticks := make([]chan struct{}, cfg.Workers)
	steps := make([]core.Task, cfg.Workers)

	for w := range runners {
		tick := make(chan struct{}, 1)
		ticks[w] = tick
		runners[w] = core.NewSequencedTaskRunner(fmt.Sprintf("bench %d", w), pool, nil)
		steps[w] = func(context.Context) {
			<-tick
			doWork(counter)
			done <- struct{}{}
		}
	}
	defer func() {
		for _, r := range runners {
			r.Shutdown()
		}
	}()

	start := time.Now()
	err := roundTrips(ctx, cfg, func(w int) {
		ticks[w] <- struct{}{}
		runners[w].PostTask(steps[w])
	}, done)
	return time.Since(start), err
}
