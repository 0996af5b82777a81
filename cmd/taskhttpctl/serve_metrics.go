package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hexacore-go/taskhttp/core"
	obs "github.com/hexacore-go/taskhttp/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func serveMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-metrics",
		Usage: "run a demo TaskRunner and expose its Prometheus metrics over HTTP",

		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":2112", Usage: "address to listen on"},
			&cli.DurationFlag{Name: "poll-interval", Value: time.Second, Usage: "snapshot poll interval"},
		},

		Action: serveMetricsAction,
	}
}

func serveMetricsAction(c *cli.Context) error {
	reg := prom.NewRegistry()

	exporter, err := obs.NewMetricsExporter("taskrunner", reg, obs.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("create metrics exporter: %v", err), 1)
	}
	poller, err := obs.NewSnapshotPoller(reg, c.Duration("poll-interval"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("create snapshot poller: %v", err), 1)
	}

	runner := core.NewTaskRunner(core.RunnerConfig{Name: "serve-metrics", Metrics: exporter}, nil)
	queue := runner.NewQueue("heartbeat")
	poller.AddRunner("serve-metrics", runner)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	poller.Start(ctx)
	defer poller.Stop()

	heartbeat := core.NewTask("heartbeat", func() int64 {
		return int64(time.Second)
	})
	if err := queue.Schedule(heartbeat, 0); err != nil {
		return cli.Exit(fmt.Sprintf("schedule heartbeat: %v", err), 1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: c.String("addr"), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		runner.Close()
	}()

	fmt.Printf("serving Prometheus metrics on %s/metrics (ctrl-c to stop)\n", c.String("addr"))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return cli.Exit(fmt.Sprintf("serve: %v", err), 1)
	}
	return nil
}
