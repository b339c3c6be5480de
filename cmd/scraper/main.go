// scraper emits one tick per instrument per interval and fans it out on the bus.
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
	"github.com/rickgao/tickstream/internal/publisher"
	"github.com/rickgao/tickstream/internal/reader"
	"github.com/rickgao/tickstream/internal/scraper"
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

	logger.Info("starting scraper", version.LogAttrs(), "config", *configPath)

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
		logger.Error("scraper failed", "error", err)
		os.Exit(1)
	}
	logger.Info("scraper stopped")
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

	pool, err := database.Connect(ctx, cfg.Database.Timescale, "tickstream-scraper")
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

	b := bus.New(busClient, bus.WithLogger(logger))
	defer b.Close()

	svc := reader.New(
		warm.NewStore(warmClient, seriesOpts, logger),
		cold.NewStore(pool, cfg.Database.PricesTable, cfg.Database.TickersTable, logger),
		b,
		cfg.Bus.Channel,
		pricegen.NewWalker(cfg.Scraper.Seed),
		reader.WithLogger(logger),
		reader.WithMetrics(m),
	)
	pub := publisher.New(b, cfg.Bus.Channel, m, logger)

	s := scraper.New(scraper.Config{
		Interval:    cfg.Scraper.Interval,
		Concurrency: cfg.Scraper.Concurrency,
		Timeout:     cfg.Scraper.Timeout,
	}, cfg.TickerList(), svc, pub, m, logger)

	metricsServer := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, reg)
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.Stop(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	return nil
}
