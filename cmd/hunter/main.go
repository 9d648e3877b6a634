// Command hunter is the promodescuentos observation service.
//
// It polls the newest-deals page on a jittered schedule, records a
// temperature time series per deal, scores each observation, and pushes
// Telegram notifications for deals that cross the tuned thresholds.
//
// Usage:
//
//	hunter
//	API_PORT=8080 hunter
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/api"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/config"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/db"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/hunter"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/notify"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scoring"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/scraper"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/tuner"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Schema bootstrap is idempotent and must precede the pool: new pool
	// connections prepare statements against these tables.
	if err := db.InitSchema(ctx, cfg.DatabaseURL, store.Defaults); err != nil {
		logger.Error("Failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database ready",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	st := store.New(pool.Pool)
	params := store.NewParams(pool.Pool)
	subs := store.NewSubscribers(pool.Pool)

	engine, err := scoring.NewEngine()
	if err != nil {
		logger.Error("Failed to load scoring timezone", "error", err)
		os.Exit(1)
	}

	// Telegram transport + subscription commands
	telegram, err := notify.NewTelegram(cfg.TelegramToken, cfg.NotifyTimeout, logger)
	if err != nil {
		logger.Error("Failed to create telegram bot", "error", err)
		os.Exit(1)
	}
	telegram.RegisterCommands(subs)
	go telegram.Start(ctx)

	dispatcher := notify.NewDispatcher(telegram, cfg.FanoutConc, cfg.FanoutPerSecond, logger)

	// AutoTuner: one pass at startup, then on a slow independent timer
	go tuner.New(pool.Pool, params, logger).Start(ctx, cfg.TunerInterval)

	sc := scraper.New(config.NewestURL, cfg.ScrapeTimeout, logger)
	loop := hunter.New(cfg, sc, st, params, subs, engine, dispatcher, logger)
	go loop.Run(ctx)

	// HTTP server: liveness + status
	router := api.NewRouter(pool.Pool, loop, params, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting API server", "addr", addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Service stopped")
}
