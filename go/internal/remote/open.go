package remote

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Backend kinds accepted by Open.
const (
	BackendMemory   = "memory"
	BackendNATS     = "nats"
	BackendPostgres = "postgres"
)

// OpenOptions selects and configures a store backend.
type OpenOptions struct {
	Kind        string
	NATSURL     string
	DatabaseURL string
}

// Backend is an opened store plus its lifecycle hooks. Run blocks until ctx
// is done; Close releases connections.
type Backend struct {
	Store Store
	Run   func(ctx context.Context) error
	Close func() error
}

// Open connects the backend named by opts.Kind.
func Open(ctx context.Context, opts OpenOptions) (*Backend, error) {
	switch opts.Kind {
	case BackendMemory, "":
		log.Warn().Msg("using in-memory store; rooms are not shared between processes")
		return &Backend{
			Store: NewMemoryStore(),
			Run:   waitDone,
			Close: func() error { return nil },
		}, nil

	case BackendNATS:
		cfg := DefaultJetStreamConfig()
		if opts.NATSURL != "" {
			cfg.URL = opts.NATSURL
		}
		store, err := NewJetStreamStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("connected to JetStream store")
		return &Backend{Store: store, Run: waitDone, Close: store.Close}, nil

	case BackendPostgres:
		db, err := sql.Open("postgres", opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", classifyPostgres(err))
		}

		cfg := DefaultPostgresConfig()
		cfg.DatabaseURL = opts.DatabaseURL
		store, err := NewPostgresStore(db, cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Backend{
			Store: store,
			Run:   store.Run,
			Close: func() error {
				store.Close()
				return db.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
}

func waitDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
