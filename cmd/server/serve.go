package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"video-narrator/api/rest/handlers"
	"video-narrator/api/rest/routes"
	"video-narrator/core/delivery"
	"video-narrator/core/monitoring"
	"video-narrator/core/scheduler"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	// jobs keep running after a signal until the grace period expires
	sched := scheduler.NewScheduler(a.pipeline, a.registry, cfg.MaxConcurrentJobs, logger)

	metrics := monitoring.NewMetricsExporter(a.registry, a.stages, sched)
	r := mux.NewRouter()
	routes.SetupRoutes(r, routes.Handlers{
		Videos:   handlers.NewVideoHandler(a.registry, sched, a.workspace, a.templates, cfg.MaxUploadBytes, logger),
		Delivery: handlers.NewDeliveryHandler(delivery.NewResolver(a.registry, a.workspace), a.signer(), logger),
		System:   handlers.NewSystemHandler(a.workspace, metrics, logger),
	}, cfg.FrontendURL, logger)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		monitoring.NewJobMonitor(a.registry, cfg.StallThreshold, logger).Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server forced to shutdown", zap.Error(err))
		}
		if err := sched.Shutdown(shutdownCtx); err != nil {
			logger.Warn("jobs still running at shutdown",
				zap.Int("running", sched.Running()),
				zap.Int("queued", sched.Queued()),
			)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}
