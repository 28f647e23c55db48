package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-thread-models/bench"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:    "bench",
		Aliases: []string{"b"},
		Usage:   "measure dispatch overhead of every strategy",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Value: 10, Usage: "units per strategy", EnvVars: envVar("BENCH_WORKERS")},
			&cli.IntFlag{Name: "iterations", Value: 100, Usage: "round trips per unit", EnvVars: envVar("BENCH_ITERATIONS")},
			&cli.IntFlag{Name: "repeat", Value: 1, Usage: "measurements per strategy", EnvVars: envVar("BENCH_REPEAT")},
			&cli.IntFlag{Name: "pool-workers", Usage: "pool size for the pooled strategy, 0 means GOMAXPROCS", EnvVars: envVar("POOL_WORKERS")},
		},
		Action: benchAction,
	}
}

func benchAction(c *cli.Context) error {
	cfg := bench.DefaultConfig()
	cfg.Workers = c.Int("workers")
	cfg.Iterations = c.Int("iterations")
	cfg.Repeat = c.Int("repeat")
	cfg.PoolWorkers = c.Int("pool-workers")
	cfg.Logger = newLogger(c)

	report, err := bench.Run(c.Context, cfg)
	if err != nil {
		if errors.Is(err, bench.ErrInvalidArguments) {
			return cli.Exit(fmt.Sprintf("Invalid arguments: %v", err), 2)
		}
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	fmt.Fprint(os.Stdout, report.String())
	return nil
}
