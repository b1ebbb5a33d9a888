package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// PostgresSchema creates the append-only snapshot table. Statements are
// idempotent.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS room_snapshots (
		id            UUID PRIMARY KEY,
		game_id       TEXT NOT NULL,
		players       JSONB NOT NULL,
		player_ids    JSONB,
		scores        JSONB NOT NULL,
		max_score     INTEGER NOT NULL DEFAULT 0,
		total_rounds  INTEGER NOT NULL,
		player_totals JSONB NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		timestamp_ms  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS room_snapshots_game_ts_idx
		ON room_snapshots (game_id, timestamp_ms DESC)`,
}

// PostgresConfig holds settings for PostgresStore's notification listener.
type PostgresConfig struct {
	DatabaseURL      string        // DSN for LISTEN/NOTIFY
	NotifyChannel    string        // channel carrying the game id of each insert
	FallbackInterval time.Duration // how often to re-query heads for missed notifications
	PingInterval     time.Duration
}

// DefaultPostgresConfig returns listener defaults; DatabaseURL must be set.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		NotifyChannel:    "room_snapshots",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// PostgresStore writes each snapshot as a row and pushes new heads to
// subscribers from a LISTEN/NOTIFY listener, with periodic polling as a
// fallback when the listener connection drops notifications.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener
	cfg      PostgresConfig

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{} // by game id

	head func(ctx context.Context, gameID string) (Document, bool, error)
}

// NewPostgresStore starts listening on cfg.NotifyChannel. Call Run to process
// notifications.
func NewPostgresStore(db *sql.DB, cfg PostgresConfig) (*PostgresStore, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", classifyPostgres(err))
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for snapshot notifications")

	p := &PostgresStore{
		db:       db,
		listener: l,
		cfg:      cfg,
		subs:     make(map[string]map[*subscriber]struct{}),
	}
	p.head = p.latest
	return p, nil
}

// Run dispatches notifications until ctx is done.
func (p *PostgresStore) Run(ctx context.Context) error {
	log.Info().
		Str("channel", p.cfg.NotifyChannel).
		Dur("ping_interval", p.cfg.PingInterval).
		Dur("fallback_interval", p.cfg.FallbackInterval).
		Msg("snapshot listener started")

	pingTicker := time.NewTicker(p.cfg.PingInterval)
	fallbackTicker := time.NewTicker(p.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("snapshot listener shutting down")
			return p.Close()
		case note := <-p.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established; re-read every head
				p.refreshAll(ctx)
				continue
			}
			p.refresh(ctx, note.Extra)
		case <-fallbackTicker.C:
			p.refreshAll(ctx)
		case <-pingTicker.C:
			if err := p.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (p *PostgresStore) Close() error {
	return p.listener.Close()
}

func (p *PostgresStore) Create(ctx context.Context, doc Document) (DocumentRef, error) {
	id := uuid.New()

	players, err := json.Marshal(doc.Players)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("marshal players: %w", err)
	}
	scores, err := json.Marshal(doc.Scores)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("marshal scores: %w", err)
	}
	totals, err := json.Marshal(doc.PlayerTotals)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("marshal player totals: %w", err)
	}
	var playerIDs pqtype.NullRawMessage
	if len(doc.PlayerIDs) > 0 {
		raw, err := json.Marshal(doc.PlayerIDs)
		if err != nil {
			return DocumentRef{}, fmt.Errorf("marshal player ids: %w", err)
		}
		playerIDs = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	createdAt, err := time.Parse(CreatedAtLayout, doc.CreatedAt)
	if err != nil {
		createdAt = time.Now().UTC()
	}

	err = runTx(ctx, p.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_snapshots (
				id, game_id, players, player_ids, scores, max_score,
				total_rounds, player_totals, created_at, timestamp_ms
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, id, doc.GameID, string(players), playerIDs, string(scores), doc.MaxScore,
			doc.TotalRounds, string(totals), createdAt, doc.Timestamp)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, p.cfg.NotifyChannel, doc.GameID); err != nil {
			return fmt.Errorf("notify snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return DocumentRef{}, classifyPostgres(err)
	}

	return DocumentRef{ID: id.String()}, nil
}

func (p *PostgresStore) Subscribe(ctx context.Context, q Query, onChange func(Document)) (Unsubscribe, error) {
	if q.GameID == "" {
		return nil, fmt.Errorf("subscribe: empty game id")
	}

	// Register before reading the head so an insert notified in between
	// still reaches this subscriber; run drops anything older.
	s := newSubscriber(q.GameID, onChange)
	p.mu.Lock()
	if p.subs[q.GameID] == nil {
		p.subs[q.GameID] = make(map[*subscriber]struct{})
	}
	p.subs[q.GameID][s] = struct{}{}
	p.mu.Unlock()
	go s.run()

	unsubscribe := func() {
		p.mu.Lock()
		delete(p.subs[q.GameID], s)
		if len(p.subs[q.GameID]) == 0 {
			delete(p.subs, q.GameID)
		}
		p.mu.Unlock()
		s.stop()
	}

	head, ok, err := p.head(ctx, q.GameID)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	if ok {
		s.push(head)
	}
	return unsubscribe, nil
}

func (p *PostgresStore) refresh(ctx context.Context, gameID string) {
	p.mu.RLock()
	var targets []*subscriber
	for s := range p.subs[gameID] {
		targets = append(targets, s)
	}
	p.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	head, ok, err := p.head(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to load latest snapshot")
		return
	}
	if !ok {
		return
	}
	for _, s := range targets {
		s.push(head)
	}
}

func (p *PostgresStore) refreshAll(ctx context.Context) {
	p.mu.RLock()
	games := make([]string, 0, len(p.subs))
	for g := range p.subs {
		games = append(games, g)
	}
	p.mu.RUnlock()

	for _, g := range games {
		p.refresh(ctx, g)
	}
}

func (p *PostgresStore) latest(ctx context.Context, gameID string) (Document, bool, error) {
	var (
		doc                     Document
		players, scores, totals []byte
		playerIDs               pqtype.NullRawMessage
		createdAt               time.Time
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT id, game_id, players, player_ids, scores, max_score,
		       total_rounds, player_totals, created_at, timestamp_ms
		FROM room_snapshots
		WHERE game_id = $1
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`, gameID).Scan(&doc.ID, &doc.GameID, &players, &playerIDs, &scores, &doc.MaxScore,
		&doc.TotalRounds, &totals, &createdAt, &doc.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, classifyPostgres(err)
	}

	if err := json.Unmarshal(players, &doc.Players); err != nil {
		return Document{}, false, fmt.Errorf("decode players: %w", err)
	}
	if err := json.Unmarshal(scores, &doc.Scores); err != nil {
		return Document{}, false, fmt.Errorf("decode scores: %w", err)
	}
	if err := json.Unmarshal(totals, &doc.PlayerTotals); err != nil {
		return Document{}, false, fmt.Errorf("decode player totals: %w", err)
	}
	if playerIDs.Valid {
		if err := json.Unmarshal(playerIDs.RawMessage, &doc.PlayerIDs); err != nil {
			return Document{}, false, fmt.Errorf("decode player ids: %w", err)
		}
	}
	doc.CreatedAt = createdAt.UTC().Format(CreatedAtLayout)
	return doc, true, nil
}

// classifyPostgres maps driver errors onto the store's error kinds.
func classifyPostgres(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "42501": // insufficient_privilege
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case pqErr.Code.Class() == "08", // connection_exception
			pqErr.Code.Class() == "53", // insufficient_resources
			pqErr.Code.Class() == "57": // operator_intervention
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
