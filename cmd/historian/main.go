// cmd/historian/main.go is the asynchronous historian service. It pops lobby event records from
// the Redis journal queue and persists them to PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/bingo/internal/config"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/historian"
	"github.com/jason-s-yu/bingo/internal/journal"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Historian{}
	cmd := &cobra.Command{
		Use:   "bingo-historian",
		Short: "Persist the lobby event journal to PostgreSQL.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cfg.RegisterFlags(cmd.Flags())

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Historian) error {
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	rdb, err := journal.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	svc := historian.New(rdb, database.NewHistory(pool), historian.Options{
		Queue:         cfg.Queue,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger)

	logger.WithFields(logrus.Fields{"redis": cfg.Redis.Addr, "batch_size": cfg.BatchSize}).Info("bingo-historian starting")
	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
