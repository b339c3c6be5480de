// api serves tick history, reconciled latest prices and live tails over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/tickstream/internal/bus"
	"github.com/rickgao/tickstream/internal/cold"
	"github.com/rickgao/tickstream/internal/config"
	"github.com/rickgao/tickstream/internal/database"
	"github.com/rickgao/tickstream/internal/logging"
	"github.com/rickgao/tickstream/internal/metrics"
	"github.com/rickgao/tickstream/internal/pricegen"
	"github.com/rickgao/tickstream/internal/reader"
	"github.com/rickgao/tickstream/internal/server"
	"github.com/rickgao/tickstream/internal/stream"
	"github.com/rickgao/tickstream/internal/version"
	"github.com/rickgao/tickstream/internal/warm"
)

func main() {
	configPath := flag.String("config", "configs/tickstream.example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, os.Stdout).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting api", version.LogAttrs(), "config", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	busClient, err := database.ConnectRedis(ctx, cfg.Bus.RedisConfig)
	if err != nil {
		return err
	}
	defer busClient.Close()

	warmClient, err := database.ConnectRedis(ctx, cfg.Warm.RedisConfig)
	if err != nil {
		return err
	}
	defer warmClient.Close()

	pool, err := database.Connect(ctx, cfg.Database.Timescale, "tickstream-api")
	if err != nil {
		return err
	}
	defer pool.Close()

	seriesOpts, err := warm.OptionsFromConfig(cfg.Warm)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	b := bus.New(busClient, bus.WithLogger(logger), bus.WithBufferSize(cfg.API.TailBufferSize))
	defer b.Close()

	warmStore := warm.NewStore(warmClient, seriesOpts, logger)
	coldStore := cold.NewStore(pool, cfg.Database.PricesTable, cfg.Database.TickersTable, logger)

	svc := reader.New(warmStore, coldStore, b, cfg.Bus.Channel,
		pricegen.NewWalker(cfg.Scraper.Seed),
		reader.WithLogger(logger),
		reader.WithMetrics(m),
		reader.WithHistoryLimit(cfg.API.HistoryLimit),
	)

	scfg := server.DefaultConfig()
	scfg.Session = stream.SessionConfig{
		PingInterval: cfg.API.PingInterval,
		PongTimeout:  2 * cfg.API.PingInterval,
		WriteTimeout: cfg.API.WriteTimeout,
		ReadLimit:    stream.DefaultSessionConfig().ReadLimit,
	}

	srv := server.New(svc, scfg,
		server.WithLogger(logger),
		server.WithCheck("bus", b.Ping),
		server.WithCheck("warm", warmStore.Ping),
		server.WithCheck("cold", coldStore.Ping),
		server.WithMetricsHandler(metrics.Handler(reg)),
	)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down...")

	// Live tails are hijacked connections; closing the bus ends them.
	b.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
