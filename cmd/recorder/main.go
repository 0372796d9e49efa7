package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dkoval/polymarket-data/internal/config"
	"github.com/dkoval/polymarket-data/internal/connection"
	"github.com/dkoval/polymarket-data/internal/logging"
	"github.com/dkoval/polymarket-data/internal/store"
	"github.com/dkoval/polymarket-data/internal/version"
	"github.com/dkoval/polymarket-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	runID := uuid.New()
	logger := logging.New(cfg.Logging).With(
		"instance_id", cfg.Instance.ID,
		"run_id", runID.String(),
	)
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"markets", len(cfg.Markets),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// CSV level writer (the durable record)
	csvWriter := writer.NewCSVWriter(writer.Config{
		Directory:  cfg.Output.Directory,
		BufferSize: writer.DefaultConfig().BufferSize,
	}, logger)

	if err := csvWriter.Start(ctx); err != nil {
		logger.Error("failed to start level writer", "error", err)
		os.Exit(1)
	}

	sinks := []connection.Sink{csvWriter}

	// Optional database mirror
	var levelStore *store.LevelStore
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		levelStore = store.NewLevelStore(store.DefaultConfig(), pool, runID, logger)
		if err := levelStore.Start(ctx); err != nil {
			logger.Error("failed to start level store", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, levelStore)

		logger.Info("database connected")
	}

	// Feed supervisor
	supCfg := connection.DefaultSupervisorConfig()
	supCfg.URL = cfg.Feed.WSURL
	supCfg.PingInterval = cfg.Feed.PingInterval
	supCfg.ReconnectBaseDelay = cfg.Feed.ReconnectBaseDelay
	supCfg.ReconnectMaxDelay = cfg.Feed.ReconnectMaxDelay
	supCfg.MaxReconnectAttempts = cfg.Feed.MaxReconnectAttempts

	supervisor := connection.NewSupervisor(supCfg, cfg.Instruments(), sinks, logger)
	if err := supervisor.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(supervisor, csvWriter, levelStore),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Periodic stats logging
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := supervisor.Stats()
				wStats := csvWriter.Stats()
				logger.Info("recorder stats",
					"state", stats.State,
					"subscribed", stats.Subscribed,
					"frames", stats.FramesReceived,
					"books", stats.BooksProcessed,
					"parse_errors", stats.ParseErrors,
					"rows_written", wStats.RowsWritten,
					"write_errors", wStats.Errors,
				)
			}
		}
	}()

	logger.Info("recorder running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	supervisor.Stop(shutdownCtx)
	if levelStore != nil {
		levelStore.Stop(shutdownCtx)
	}
	csvWriter.Stop(shutdownCtx)

	logger.Info("recorder stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(sup *connection.Supervisor, csvWriter *writer.CSVWriter, levelStore *store.LevelStore) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := sup.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		health.Components["feed"] = map[string]interface{}{
			"state":      string(stats.State),
			"subscribed": stats.Subscribed,
			"attempts":   stats.Attempts,
			"last_pong":  stats.LastPong,
		}
		if stats.Exhausted {
			health.Status = "unhealthy"
		} else if !stats.Subscribed {
			health.Status = "degraded"
		}

		wStats := csvWriter.Stats()
		health.Components["writer"] = map[string]interface{}{
			"appends":      wStats.Appends,
			"rows_written": wStats.RowsWritten,
			"errors":       wStats.Errors,
		}

		if levelStore != nil {
			sStats := levelStore.Stats()
			health.Components["store"] = map[string]interface{}{
				"inserts":   sStats.Inserts,
				"conflicts": sStats.Conflicts,
				"errors":    sStats.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"supervisor": sup.Stats(),
			"writer":     csvWriter.Stats(),
		})
	})

	return mux
}
