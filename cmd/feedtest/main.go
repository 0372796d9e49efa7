// feedtest connects to the market feed and prints derived book snapshots to
// the console. Nothing is written to disk.
//
// Usage: go run ./cmd/feedtest --config configs/recorder.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkoval/polymarket-data/internal/buffer"
	"github.com/dkoval/polymarket-data/internal/config"
	"github.com/dkoval/polymarket-data/internal/connection"
	"github.com/dkoval/polymarket-data/internal/model"
)

// consoleSink buffers snapshots for the console printer goroutine.
type consoleSink struct {
	buf *buffer.Growable[model.BookSnapshot]
}

func (s *consoleSink) Append(snap model.BookSnapshot) {
	s.buf.Push(snap)
}

func main() {
	configPath := flag.String("config", "configs/recorder.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full snapshot JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	sink := &consoleSink{buf: buffer.New[model.BookSnapshot](1024)}

	supCfg := connection.DefaultSupervisorConfig()
	supCfg.URL = cfg.Feed.WSURL
	supCfg.PingInterval = cfg.Feed.PingInterval
	supCfg.ReconnectBaseDelay = cfg.Feed.ReconnectBaseDelay
	supCfg.ReconnectMaxDelay = cfg.Feed.ReconnectMaxDelay
	supCfg.MaxReconnectAttempts = cfg.Feed.MaxReconnectAttempts

	supervisor := connection.NewSupervisor(supCfg, cfg.Instruments(), []connection.Sink{sink}, logger)

	logger.Info("starting supervisor", "url", supCfg.URL, "markets", len(cfg.Markets))
	if err := supervisor.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	// Console printer
	go printSnapshots(ctx, sink.buf, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := supervisor.Stats()
				logger.Info("stats",
					"state", stats.State,
					"subscribed", stats.Subscribed,
					"frames", stats.FramesReceived,
					"books", stats.BooksProcessed,
					"parse_errors", stats.ParseErrors,
					"dropped", stats.EventsDropped,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	supervisor.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printSnapshots(ctx context.Context, buf *buffer.Growable[model.BookSnapshot], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			snap, ok := buf.TryPop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(snap, "", "  ")
				fmt.Printf("[BOOK] %s\n", data)
				continue
			}

			best := func(levels []model.PriceLevel) string {
				if len(levels) == 0 {
					return "-"
				}
				return levels[0].Price
			}
			fmt.Printf("[BOOK] market=%s side=%s bids=%d asks=%d best_bid=%s best_ask=%s ts=%d\n",
				snap.Market, snap.Side, len(snap.Bids), len(snap.Asks),
				best(snap.Bids), best(snap.Asks), snap.Timestamp)
		}
	}
}
