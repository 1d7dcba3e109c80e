// Command dsxia-serve runs the optional long-lived shell around
// CoreContext (SPEC_FULL.md §13.2): a directory watch that keeps the
// index warm plus a thin /healthz and /metrics HTTP surface. It never
// answers analysis queries itself — those remain the batch dsxia CLI's
// job (§11.4).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dsxia/internal/coreapp"
	"dsxia/internal/metrics"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	core, err := coreapp.New(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := core.RebuildIndex(ctx, false); err != nil {
		core.Logger.WithError(err).Error("initial index build failed")
		os.Exit(1)
	}

	if err := core.StartWatch(ctx); err != nil {
		core.Logger.WithError(err).Error("failed to start directory watch")
		os.Exit(1)
	}
	defer core.StopWatch()

	var server *metrics.Server
	if core.Config.HTTP.Enabled {
		server = metrics.NewServer(core.Config.HTTP.ListenAddress, core.Logger)
		if err := server.Start(); err != nil {
			core.Logger.WithError(err).Error("failed to start metrics server")
			os.Exit(1)
		}
		defer server.Stop()
	}

	core.Logger.Info("dsxia-serve running, watching for DSX changes")
	<-ctx.Done()
	core.Logger.Info("shutting down")
}
