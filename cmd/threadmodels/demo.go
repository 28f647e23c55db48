package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	threadmodels "github.com/Swind/go-thread-models"
	"github.com/Swind/go-thread-models/core"
)

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "drive a thread model frame by frame and print its status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Value:   "pooled",
				Usage:   "sequential, thread-per-task or pooled",
				EnvVars: envVar("MODEL"),
			},
			&cli.IntFlag{Name: "foreground", Value: 5, Usage: "number of foreground units", EnvVars: envVar("FOREGROUND")},
			&cli.IntFlag{Name: "background", Value: 1000, Usage: "number of background units", EnvVars: envVar("BACKGROUND")},
			&cli.IntFlag{Name: "evil", Usage: "number of disruptive units (pooled model only)", EnvVars: envVar("EVIL")},
			&cli.IntFlag{Name: "ticks", Value: 600, Usage: "frames to drive, 0 runs until interrupted", EnvVars: envVar("TICKS")},
			&cli.IntFlag{Name: "report-every", Value: 60, Usage: "print status every N frames", EnvVars: envVar("REPORT_EVERY")},
			&cli.DurationFlag{Name: "frame", Value: 16 * time.Millisecond, Usage: "minimum frame duration", EnvVars: envVar("FRAME")},
			&cli.DurationFlag{Name: "render", Value: time.Millisecond, Usage: "work done by each foreground unit per frame", EnvVars: envVar("RENDER")},
			&cli.DurationFlag{Name: "max-sleep", Value: time.Second, Usage: "upper bound of background sleeps", EnvVars: envVar("MAX_SLEEP")},
			&cli.IntFlag{Name: "pool-workers", Usage: "pooled model workers, 0 means GOMAXPROCS", EnvVars: envVar("POOL_WORKERS")},
			&cli.IntFlag{Name: "max-units", Usage: "cap on units per model, 0 means no cap", EnvVars: envVar("MAX_UNITS")},
			&cli.IntFlag{Name: "switch-every", Usage: "switch to the next model every N frames, 0 never switches", EnvVars: envVar("SWITCH_EVERY")},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address", EnvVars: envVar("METRICS_ADDR")},
		},
		Action: demoAction,
	}
}

// population is the unit mix created on every model the demo drives.
type population struct {
	Foreground int
	Background int
	Evil       int
}

func demoAction(c *cli.Context) error {
	logger := newLogger(c)

	kind, err := threadmodels.ParseThreadModelKind(c.String("model"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	metrics, err := startMetricsServer(ctx, c.String("metrics-addr"), logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to start metrics: %v", err), 1)
	}
	defer metrics.Close()

	render := c.Duration("render")
	opts := threadmodels.DefaultOptions()
	opts.MaxSleep = c.Duration("max-sleep")
	opts.PoolWorkers = c.Int("pool-workers")
	opts.MaxUnits = c.Int("max-units")
	opts.Logger = logger
	opts.Metrics = metrics.Metrics()
	opts.TickHandler = func(ctx context.Context, unit threadmodels.UnitInfo, tick threadmodels.Tick) {
		select {
		case <-time.After(render):
		case <-ctx.Done():
		}
	}

	pop := population{
		Foreground: c.Int("foreground"),
		Background: c.Int("background"),
		Evil:       c.Int("evil"),
	}
	// The counter outlives model switches so progress keeps accumulating.
	counter := threadmodels.NewSharedCounter()

	model, err := threadmodels.New(kind, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	populate(model, counter, pop, logger)
	metrics.Watch(model, counter)

	d := &demoLoop{
		model:       model,
		counter:     counter,
		ticks:       c.Int("ticks"),
		reportEvery: c.Int("report-every"),
		switchEvery: c.Int("switch-every"),
		frame:       c.Duration("frame"),
		status:      &statusPrinter{out: os.Stdout},
		memory:      newMemoryReader(),
		onSwitch: func(current threadmodels.ThreadModel, next threadmodels.ThreadModelKind) (threadmodels.ThreadModel, error) {
			metrics.Unwatch(current)
			m, err := threadmodels.Switch(current, next, opts)
			if m != nil {
				populate(m, counter, pop, logger)
				metrics.Watch(m, counter)
			}
			return m, err
		},
		logger: logger,
	}

	runErr := d.run(ctx)
	var errs *multierror.Error
	if runErr != nil {
		errs = multierror.Append(errs, runErr)
	}
	if err := d.model.Shutdown(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("shutdown: %w", err))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	logger.Info("demo finished",
		core.F("model", d.model.Kind().String()),
		core.F("ticks", d.driven),
		core.F("counter", counter.Load()))
	return nil
}

// populate creates pop's units on model. A failed creation is logged and abandons
// the rest of that unit kind; the model stays usable.
func populate(model threadmodels.ThreadModel, counter *threadmodels.SharedCounter, pop population, logger core.Logger) {
	create := func(n int, what string, fn func() error) {
		for i := 0; i < n; i++ {
			if err := fn(); err != nil {
				logger.Warn("unit creation abandoned",
					core.F("kind", what), core.F("created", i), core.F("error", err))
				return
			}
		}
	}
	create(pop.Foreground, "foreground", model.CreateForegroundTask)
	create(pop.Background, "background", func() error { return model.CreateBackgroundTask(counter) })
	create(pop.Evil, "evil", model.CreateEvilTask)
}

// demoLoop is the driver: one RunInteractive and one JoinInteractive per frame.
type demoLoop struct {
	model       threadmodels.ThreadModel
	counter     *threadmodels.SharedCounter
	ticks       int
	reportEvery int
	switchEvery int
	frame       time.Duration
	status      *statusPrinter
	memory      fmt.Stringer
	onSwitch    func(threadmodels.ThreadModel, threadmodels.ThreadModelKind) (threadmodels.ThreadModel, error)
	logger      core.Logger

	driven int
}

func (d *demoLoop) run(ctx context.Context) error {
	for tick := 1; d.ticks == 0 || tick <= d.ticks; tick++ {
		if ctx.Err() != nil {
			d.logger.Info("interrupted", core.F("tick", tick))
			return nil
		}

		start := time.Now()
		if err := d.model.RunInteractive(tick); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		if err := d.model.JoinInteractive(); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		d.driven = tick

		if d.reportEvery > 0 && tick%d.reportEvery == 0 {
			d.status.Print(statusLine{
				Tick:    tick,
				Stats:   d.model.Stats(),
				Counter: d.counter.Load(),
				Memory:  d.memory.String(),
			})
		}

		if d.switchEvery > 0 && tick%d.switchEvery == 0 && d.onSwitch != nil {
			next := nextKind(d.model.Kind())
			d.logger.Info("switching model", core.F("from", d.model.Kind().String()), core.F("to", next.String()))
			m, err := d.onSwitch(d.model, next)
			if m == nil {
				return err
			}
			d.model = m
			if err != nil {
				d.logger.Warn("previous model teardown", core.F("error", err))
			}
		}

		if wait := d.frame - time.Since(start); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
	}
	return nil
}

func nextKind(k threadmodels.ThreadModelKind) threadmodels.ThreadModelKind {
	for i, kind := range core.AllKinds {
		if kind == k {
			return core.AllKinds[(i+1)%len(core.AllKinds)]
		}
	}
	return core.AllKinds[0]
}
