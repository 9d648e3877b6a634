// Command ops is the operational CLI for the notification service.
//
// Usage:
//
//	promo-ops initdb
//	promo-ops tune
//	promo-ops config list
//	promo-ops config get viral_threshold
//	promo-ops config set viral_threshold 42.5
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PaqoIbanez/promodescuentos-notifications/internal/config"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/db"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/store"
	"github.com/PaqoIbanez/promodescuentos-notifications/internal/tuner"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "promo-ops",
		Short: "Operational CLI for the promodescuentos notification service",
	}

	root.AddCommand(initDBCmd())
	root.AddCommand(tuneCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withPool connects, runs fn, and closes the pool.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// --------------------------------------------------------------------------
// initdb command
// --------------------------------------------------------------------------

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create tables, indexes, and seed default parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := db.InitSchema(ctx, cfg.DatabaseURL, store.Defaults); err != nil {
				return err
			}
			logger.Info("Schema initialized")
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// tune command
// --------------------------------------------------------------------------

func tuneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tune",
		Short: "Run one AutoTuner pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				params := store.NewParams(pool.Pool)
				return tuner.New(pool.Pool, params, logger).Run(ctx)
			})
		},
	}
}

// --------------------------------------------------------------------------
// config commands
// --------------------------------------------------------------------------

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit tuned parameters",
	}
	cmd.AddCommand(configListCmd())
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every stored parameter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				values, err := store.NewParams(pool.Pool).All(ctx)
				if err != nil {
					return err
				}
				for key, value := range values {
					fmt.Printf("%s = %g\n", key, value)
				}
				return nil
			})
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one parameter (seed default when unset)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				fmt.Printf("%g\n", store.NewParams(pool.Pool).Get(ctx, args[0]))
				return nil
			})
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				if err := store.NewParams(pool.Pool).Set(ctx, args[0], value); err != nil {
					return err
				}
				logger.Info("Parameter updated", "key", args[0], "value", value)
				return nil
			})
		},
	}
}
