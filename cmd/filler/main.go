// filler copies the aggregate tick stream into the warm and cold stores.
// Each sink runs its own subscription; either failing stops the process
// with a non-zero exit so a supervisor can restart it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tickstream/internal/bus"
	"github.com/rickgao/tickstream/internal/cold"
	"github.com/rickgao/tickstream/internal/config"
	"github.com/rickgao/tickstream/internal/database"
	"github.com/rickgao/tickstream/internal/filler"
	"github.com/rickgao/tickstream/internal/logging"
	"github.com/rickgao/tickstream/internal/metrics"
	"github.com/rickgao/tickstream/internal/version"
	"github.com/rickgao/tickstream/internal/warm"
)

func main() {
	configPath := flag.String("config", "configs/tickstream.example.yaml", "path to config file")
	sinks := flag.String("sinks", "warm,cold", "comma-separated sinks to fill (warm, cold)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, os.Stdout).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting filler", version.LogAttrs(), "config", *configPath, "sinks", *sinks)

	enabled, err := parseSinks(*sinks)
	if err != nil {
		logger.Error("invalid -sinks", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, enabled, logger); err != nil {
		logger.Error("filler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("filler stopped")
}

func parseSinks(s string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "warm", "cold":
			out[name] = true
		case "":
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no sinks selected")
	}
	return out, nil
}

func run(ctx context.Context, cfg *config.Config, enabled map[string]bool, logger *slog.Logger) error {
	busClient, err := database.ConnectRedis(ctx, cfg.Bus.RedisConfig)
	if err != nil {
		return err
	}
	defer busClient.Close()

	b := bus.New(busClient, bus.WithLogger(logger))
	defer b.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	fcfg := filler.Config{
		Channel:     cfg.Bus.Channel,
		Instruments: cfg.TickerList(),
	}

	var fillers []*filler.Filler

	if enabled["warm"] {
		warmClient, err := database.ConnectRedis(ctx, cfg.Warm.RedisConfig)
		if err != nil {
			return err
		}
		defer warmClient.Close()

		seriesOpts, err := warm.OptionsFromConfig(cfg.Warm)
		if err != nil {
			return err
		}
		sink := filler.WarmSink{Store: warm.NewStore(warmClient, seriesOpts, logger)}
		fillers = append(fillers, filler.New(fcfg, sink, b, m, logger))
	}

	if enabled["cold"] {
		pool, err := database.Connect(ctx, cfg.Database.Timescale, "tickstream-filler")
		if err != nil {
			return err
		}
		defer pool.Close()

		sink := filler.ColdSink{Store: cold.NewStore(pool, cfg.Database.PricesTable, cfg.Database.TickersTable, logger)}
		fillers = append(fillers, filler.New(fcfg, sink, b, m, logger))
	}

	metricsServer := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, reg)
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range fillers {
		g.Go(func() error {
			return f.Run(gctx)
		})
	}
	return g.Wait()
}
