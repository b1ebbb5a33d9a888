// Command gateway serves room snapshots to browsers over WebSocket and HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/gamemate/go/internal/config"
	"github.com/mcdev12/gamemate/go/internal/gateway"
	"github.com/mcdev12/gamemate/go/internal/remote"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.ConfigureLogging(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := remote.Open(ctx, remote.OpenOptions{
		Kind:        string(cfg.Store),
		NATSURL:     cfg.NATSURL,
		DatabaseURL: cfg.Database.DSN(),
	})
	if err != nil {
		log.Fatal().Err(err).Str("store", string(cfg.Store)).Msg("failed to open remote store")
	}
	defer backend.Close()

	service := gateway.NewService(gateway.DefaultConfig(), backend.Store)
	server := setupServer(cfg.HTTPAddr, gateway.NewRouter(service, nil))

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", string(cfg.Store)).
		Msg("starting room gateway")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return backend.Run(gctx) })
	g.Go(func() error { return service.Start(gctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped with error")
	}
	log.Info().Msg("server stopped")
}
