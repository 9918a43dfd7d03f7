package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "hackchat",
		Usage:   "Local chat conversation engine with simulated bot replies",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(),
			dumpCommand(),
			resetCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
