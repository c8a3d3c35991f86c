package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	ensemble "github.com/ensemble-dev/ensemble"
	"github.com/ensemble-dev/ensemble/pkg/adapters/httpapi"
	"github.com/ensemble-dev/ensemble/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator HTTP server",
	Long: `Starts the HTTP API: device management, the action library, run
control, a server-sent event stream, Prometheus metrics, and a WebSocket
endpoint for devices that dial in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		registry := prometheus.NewRegistry()
		collector := metrics.New(registry)

		orc, cleanup, err := newOrchestrator(ctx, cfg, logger, ensemble.WithMetrics(collector))
		if err != nil {
			return err
		}
		defer cleanup()

		server := &http.Server{
			Addr: cfg.Listen,
			Handler: httpapi.NewHandler(orc,
				httpapi.WithLogger(logger),
				httpapi.WithGatherer(registry),
			),
		}

		errs := make(chan error, 1)
		go func() {
			logger.Info("http server listening", "addr", cfg.Listen)
			errs <- server.ListenAndServe()
		}()

		select {
		case err := <-errs:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address, overrides the configuration file")
	rootCmd.AddCommand(serveCmd)
}
