package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/warp/ballot-engine/api"
	"github.com/warp/ballot-engine/ballot"
	"github.com/warp/ballot-engine/observability"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ballot HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeBackend()

	handler := api.NewHandler(backend)
	handler.Logger = slog.Default()
	handler.Ledger.Policy = ballot.NewRetractionPolicy(cfg.Ballot.RetractionWindow.Duration)
	handler.Ledger.PageSize = cfg.Ballot.PageSize

	opts := api.RouterOptions{
		CORSOrigins:  cfg.Server.CORSOrigins,
		DevScenarios: cfg.Server.DevScenarios,
	}

	var scheduler *api.TurnoutScheduler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := observability.NewMetrics(reg)
		handler.Ledger.Observer = metrics
		handler.Tally.Observer = metrics

		opts.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		opts.MetricsPath = cfg.Metrics.Path

		scheduler = api.NewTurnoutScheduler(handler.Tally, metrics, cfg.Regions)
		scheduler.ElectionID = ballot.ElectionID(cfg.Scheduler.Election)
		scheduler.Interval = cfg.Scheduler.TurnoutInterval.Duration
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, opts),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", cfg.Server.Addr,
			"driver", cfg.Database.Driver,
			"retraction_window", cfg.Ballot.RetractionWindow.Duration,
			"dev_scenarios", cfg.Server.DevScenarios)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}

	slog.Info("server stopped")
	return nil
}
