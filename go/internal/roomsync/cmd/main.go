// Command roomsync is a terminal score sheet that hosts or views a room.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/gamemate/go/internal/cache"
	"github.com/mcdev12/gamemate/go/internal/config"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
	"github.com/mcdev12/gamemate/go/internal/roomsync"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.ConfigureLogging(true)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("roomsync stopped with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	kv, err := cache.OpenSQLiteKV(ctx, cfg.CachePath)
	if err != nil {
		return err
	}
	defer kv.Close()

	backend, err := remote.Open(ctx, remote.OpenOptions{
		Kind:        string(cfg.Store),
		NATSURL:     cfg.NATSURL,
		DatabaseURL: cfg.Database.DSN(),
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	roster := make([]models.Player, len(cfg.Roster))
	for i, name := range cfg.Roster {
		roster[i] = models.NewPlayer(name)
	}

	session := roomsync.NewSession(roomsync.Config{
		Cache:        cache.New(kv, cfg.DeviceID),
		Store:        backend.Store,
		Roster:       roster,
		WriteTimeout: cfg.WriteTimeout,
		OnChange: func(state models.GameState) {
			log.Debug().
				Str("room_code", state.RoomCode).
				Int("rounds", len(state.Rounds)).
				Int64("timestamp", state.Timestamp).
				Msg("score sheet changed")
		},
	})
	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("%s in room %s, type help for commands\n", session.Role(), session.RoomCode())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return backend.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return prompt(gctx, sessionSheet{session})
	})
	return g.Wait()
}

// prompt runs commands from stdin until quit, EOF, or ctx is done.
func prompt(ctx context.Context, s sheet) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}
			err := execute(ctx, s, cmd, os.Stdout)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case err != nil:
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}
