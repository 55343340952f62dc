// Command uisched drives the UI scheduler with synthetic workloads.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func newApp() *cli.App {
	return &cli.App{
		Name:      "uisched",
		Usage:     "Exercise the cooperative UI task scheduler.",
		Version:   version,
		UsageText: "uisched <command> [arguments...]",
		Commands: []*cli.Command{
			SimulateCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
