package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotboard/internal/api"
	"github.com/IshaanNene/hotboard/internal/crawler"
	"github.com/IshaanNene/hotboard/internal/observability"
	"github.com/IshaanNene/hotboard/internal/scheduler"
)

var (
	servePort        int
	serveNoScheduler bool
	serveCrawlFirst  bool
)

// serveCmd runs the API server together with the scheduler.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and run scheduled crawls",
		RunE:  runServe,
	}

	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "disable scheduled crawls")
	cmd.Flags().BoolVar(&serveCrawlFirst, "crawl-on-start", false, "run one crawl before serving")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := observability.NewMetrics(logger)
	coord, err := crawler.FromConfig(cfg, store, metrics, logger)
	if err != nil {
		return fmt.Errorf("build crawler: %w", err)
	}
	defer coord.Close()

	if serveCrawlFirst {
		coord.CrawlAll(ctx)
	}

	var opts []api.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, api.WithMetrics(cfg.Metrics.Path, metrics))
	}

	if cfg.Scheduler.Enabled && !serveNoScheduler {
		sched, err := scheduler.New(cfg.Scheduler, func(ctx context.Context) {
			coord.CrawlAll(ctx)
		}, logger)
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
		opts = append(opts, api.WithSchedule(sched.Entries))
	}

	srv := api.NewServer(cfg.Server, store, coord, logger, opts...)
	return srv.ListenAndServe(ctx)
}
