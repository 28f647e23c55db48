// Command threadmodels drives the three thread models from a terminal: an
// interactive-style demo loop, a pool starvation demo and the overhead benchmark.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-thread-models/core"
)

const envPrefix = "THREADMODELS_"

func envVar(name string) []string {
	return []string{envPrefix + name}
}

func main() {
	app := &cli.App{
		Name:  "threadmodels",
		Usage: "compare sequential, thread-per-task and pooled thread models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "trace, debug, info, warn or error",
				EnvVars: envVar("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			demoCommand(),
			starveCommand(),
			benchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) core.Logger {
	return core.NewLeveledLogger(os.Stderr, c.String("log-level"))
}
