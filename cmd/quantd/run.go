package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/liuck8080/OnchainQuant/adapters/httpapi"
	"github.com/liuck8080/OnchainQuant/core/app"
	"github.com/liuck8080/OnchainQuant/internal/config"
	"github.com/liuck8080/OnchainQuant/internal/logger"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node: block producer, controllers, HTTP API and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, sync, err := logger.New(cfg.Env, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config/quantd.yaml", "path to the YAML config")
	return cmd
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := promclient.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	acfg, err := appConfig(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	a, err := app.Run(acfg)
	if err != nil {
		return err
	}

	errs := make(chan error, 2)
	go func() { errs <- a.Produce(cfg.Host.BlockTime) }()

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		r := httpapi.NewServer(a, httpapi.Options{Log: log, AllowAdvance: cfg.HTTP.AllowAdvance}).Routes()
		if cfg.HTTP.Metrics {
			r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		}
		srv = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      r,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
		go func() {
			log.Info("starting HTTP server", slog.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err = <-errs:
		if err != nil {
			log.Error("node failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Error("error during HTTP shutdown", slog.Any("error", serr))
		}
	}
	if serr := a.Shutdown(shutdownCtx); serr != nil {
		log.Error("error during shutdown", slog.Any("error", serr))
	}
	log.Info("node stopped")
	return err
}
