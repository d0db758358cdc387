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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/chat/internal/adapters/http"
	"github.com/dkeye/chat/internal/app"
	"github.com/dkeye/chat/internal/auth"
	"github.com/dkeye/chat/internal/config"
	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/storage/badger"
	"github.com/dkeye/chat/internal/storage/sqlite"
)

func openStore(ctx context.Context, s config.Storage) (core.Store, error) {
	switch s.Driver {
	case config.DriverSQLite:
		return sqlite.Open(ctx, s.DSN)
	case config.DriverBadger:
		return badger.Open(s.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
	}
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	reg := core.NewRoomRegistry()
	rooms := app.NewRooms(store)
	orch := app.NewOrchestrator(reg, store, rooms, app.SimplePolicy{}, cfg.Chat)
	authn := app.NewAuthenticator(
		auth.NewVerifier(cfg.IDP, cfg.Federation),
		app.NewIdentityResolver(store, store),
	)

	r := router.SetupRouter(ctx, cfg, orch, authn)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("storage", cfg.Storage.Driver).Msg("chat server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("Server exited gracefully")
}
