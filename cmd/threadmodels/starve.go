package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/urfave/cli/v2"

	threadmodels "github.com/Swind/go-thread-models"
	"github.com/Swind/go-thread-models/core"
)

func starveCommand() *cli.Command {
	return &cli.Command{
		Name:  "starve",
		Usage: "show foreground ticks stalling behind blocking units in the pooled model",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pool-workers", Value: 1, Usage: "pool size", EnvVars: envVar("POOL_WORKERS")},
			&cli.IntFlag{Name: "foreground", Value: 2, Usage: "number of foreground units", EnvVars: envVar("FOREGROUND")},
			&cli.IntFlag{Name: "evil", Value: 1, Usage: "number of disruptive units", EnvVars: envVar("EVIL")},
			&cli.DurationFlag{Name: "evil-sleep", Value: 500 * time.Millisecond, Usage: "blocking interval of each disruptive unit", EnvVars: envVar("EVIL_SLEEP")},
			&cli.IntFlag{Name: "ticks", Value: 5, Usage: "frames to drive", EnvVars: envVar("TICKS")},
		},
		Action: starveAction,
	}
}

type tickTiming struct {
	Tick    int
	Elapsed time.Duration
}

func starveAction(c *cli.Context) error {
	logger := newLogger(c)
	evilSleep := c.Duration("evil-sleep")

	opts := threadmodels.DefaultOptions()
	opts.PoolWorkers = c.Int("pool-workers")
	opts.EvilSleep = evilSleep
	opts.Logger = logger

	model, err := threadmodels.New(threadmodels.KindPooledWorkerTasks, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	populate(model, nil, population{Foreground: c.Int("foreground"), Evil: c.Int("evil")}, logger)

	timings, runErr := driveTimed(model, c.Int("ticks"))
	if err := model.Shutdown(); err != nil {
		logger.Warn("shutdown", core.F("error", err))
	}
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", runErr), 1)
	}

	fmt.Fprintf(os.Stdout, "Pooled model (workers = %d, evil = %d, evil sleep = %s)\n\n",
		opts.PoolWorkers, c.Int("evil"), evilSleep)
	t := tabby.NewCustom(tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0))
	t.AddHeader("TICK", "RUN+JOIN", "STALLED")
	for _, tt := range timings {
		t.AddLine(tt.Tick, tt.Elapsed.Round(time.Millisecond), stalled(tt.Elapsed, evilSleep))
	}
	t.Print()
	return nil
}

// driveTimed runs ticks frames and records how long each Run+Join took.
func driveTimed(model threadmodels.ThreadModel, ticks int) ([]tickTiming, error) {
	timings := make([]tickTiming, 0, ticks)
	for tick := 1; tick <= ticks; tick++ {
		start := time.Now()
		if err := model.RunInteractive(tick); err != nil {
			return timings, fmt.Errorf("tick %d: %w", tick, err)
		}
		if err := model.JoinInteractive(); err != nil {
			return timings, fmt.Errorf("tick %d: %w", tick, err)
		}
		timings = append(timings, tickTiming{Tick: tick, Elapsed: time.Since(start)})
	}
	return timings, nil
}

// stalled reports whether a frame waited at least half a disruptive sleep.
func stalled(elapsed, evilSleep time.Duration) bool {
	return evilSleep > 0 && elapsed >= evilSleep/2
}
