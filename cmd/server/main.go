// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/bingo/internal/auth"
	"github.com/jason-s-yu/bingo/internal/config"
	"github.com/jason-s-yu/bingo/internal/handlers"
	"github.com/jason-s-yu/bingo/internal/journal"
	"github.com/jason-s-yu/bingo/internal/lobby"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Server{}
	if err := newCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCmd(cfg *config.Server) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bingo-server",
		Short:   "Lobby session server for the bingo board game.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	cfg.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "token",
		Short: "Print an admin bearer token for /admin/lobbies.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.New(cfg.AdminSecret, cfg.AdminTokenTTL).CreateJWT(auth.AdminSubject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func serve(ctx context.Context, cfg *config.Server) error {
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	rule, err := lobby.RuleByName(cfg.WinRule)
	if err != nil {
		return err
	}

	var j journal.Journal = journal.Nop{}
	var journalDone <-chan struct{}
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()
	if cfg.Redis.Addr != "" {
		rdb, err := journal.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		rj := journal.NewRedisJournal(rdb, cfg.Queue, cfg.JournalBuffer, logger)
		go rj.Run(journalCtx)
		j, journalDone = rj, rj.Done()
		logger.WithFields(logrus.Fields{"redis": cfg.Redis.Addr, "queue": cfg.Queue}).Info("journal enabled")
	}

	store := lobby.NewStore(lobby.Options{
		WinRule:       rule,
		Journal:       j,
		MaxDeckSize:   cfg.MaxDeckSize,
		MaxNameLength: cfg.MaxNameLength,
		Logger:        logger,
	})
	go store.RunSweeper(ctx, cfg.SweepInterval, cfg.LobbyIdleTimeout)

	gw := handlers.NewGateway(store, logger)
	srv := &http.Server{
		Addr: cfg.ListenAddr(),
		Handler: handlers.NewRouter(logger, gw, handlers.ServerOptions{
			PublicURL: cfg.PublicURL,
			Auth:      auth.New(cfg.AdminSecret, cfg.AdminTokenTTL),
			WS: handlers.WSOptions{
				OriginPatterns: cfg.AllowedOrigins,
				SendBuffer:     cfg.SendBuffer,
				RateLimit:      cfg.RateLimit,
				RateBurst:      cfg.RateBurst,
			},
		}),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "win_rule": rule.Name()}).Info("bingo-server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}

	for _, l := range store.Lobbies() {
		l.Close("server shutting down")
	}

	stopJournal()
	if journalDone != nil {
		<-journalDone
	}
	return nil
}
