// tailcat connects to the Read API and streams live ticks to the console.
// Usage: go run ./cmd/tailcat --url http://localhost:8000 --ticker ticker_00
//
// With --list it prints the registered instruments and their latest
// prices instead of tailing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/tickstream/internal/client"
	"github.com/rickgao/tickstream/internal/stream"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "Read API base URL")
	ticker := flag.String("ticker", "", "instrument to tail (empty = all)")
	list := flag.Bool("list", false, "print instruments and latest prices, then exit")
	verbose := flag.Bool("verbose", false, "print raw payloads")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	api := client.New(*baseURL, client.WithLogger(logger), client.WithTimeout(10*time.Second))

	if *list {
		if err := printLatest(ctx, api); err != nil {
			logger.Error("list failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg := stream.DefaultTailConfig(api.TailURL(*ticker))

	tail, err := stream.DialTail(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer tail.Close()

	logger.Info("streaming started - press Ctrl+C to stop", "url", cfg.URL)

	var received int
	stats := time.NewTicker(10 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete", "received", received, "malformed", tail.Malformed())
			return
		case <-stats.C:
			logger.Info("stats", "received", received, "malformed", tail.Malformed())
		case frame, ok := <-tail.Frames():
			if !ok {
				if err := tail.Err(); err != nil {
					logger.Error("stream ended", "error", err, "received", received)
					os.Exit(1)
				}
				return
			}
			received++
			if *verbose {
				fmt.Printf("%s\n", frame.Raw)
				continue
			}
			fmt.Printf("[TICK] ticker=%s price=%d observed=%s lag=%s\n",
				frame.Tick.InstrumentID, frame.Tick.Value,
				frame.Tick.ObservedTime().Format(time.RFC3339),
				frame.Lag.Round(time.Millisecond))
		}
	}
}

func printLatest(ctx context.Context, api *client.Client) error {
	tickers, err := api.Tickers(ctx)
	if err != nil {
		return err
	}
	for _, t := range tickers {
		price, err := api.Latest(ctx, t)
		if err != nil {
			fmt.Printf("%-12s error: %v\n", t, err)
			continue
		}
		fmt.Printf("%-12s %d\n", t, price)
	}
	return nil
}
