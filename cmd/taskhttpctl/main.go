// Command taskhttpctl drives the HTTP/1.1 exchange codec and the task
// scheduler from the command line: fetch one URL, benchmark the scheduler
// under synthetic load, or serve a demo scheduler's Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "taskhttpctl",
		Usage: "drive the HTTP/1.1 exchange codec and task scheduler",
		Commands: []*cli.Command{
			fetchCommand(),
			benchRunnerCommand(),
			serveMetricsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
