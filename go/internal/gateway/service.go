package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
	"github.com/mcdev12/gamemate/go/internal/roomsync"
)

// Service fans room snapshots out to browser viewers. A room is followed on
// the remote store while at least one WebSocket client watches it.
type Service struct {
	store             remote.Store
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler

	ctx context.Context

	mu     sync.Mutex
	feeds  map[string]*roomFeed
	latest map[string]models.GameState
}

type roomFeed struct {
	channel *roomsync.Channel
	sub     *roomsync.Subscription
	clients int
	done    chan struct{}
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig

	// LookupTimeout bounds how long a state request waits for a room that is
	// not being followed to deliver its newest snapshot.
	LookupTimeout time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		LookupTimeout:    2 * time.Second,
	}
}

// NewService creates a gateway over store.
func NewService(config Config, store remote.Store) *Service {
	s := &Service{
		store:  store,
		ctx:    context.Background(),
		feeds:  make(map[string]*roomFeed),
		latest: make(map[string]models.GameState),
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, s)
	s.wsHandler = NewWebSocketHandler(s.connectionManager)
	s.stateHandler = NewStateHandler(s, config.LookupTimeout)
	return s
}

// Start runs the broadcast loop until ctx is done, then closes every feed.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.connectionManager.Start(ctx)

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop closes every room subscription.
func (s *Service) Stop() error {
	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*roomFeed)
	s.latest = make(map[string]models.GameState)
	s.mu.Unlock()

	for code, feed := range feeds {
		feed.channel.Close()
		<-feed.done
		log.Debug().Str("room_code", code).Msg("room feed stopped")
	}
	return nil
}

// Acquire follows code for one more client.
func (s *Service) Acquire(code string) (*RoomEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if feed, ok := s.feeds[code]; ok {
		feed.clients++
	} else if err := s.openFeedLocked(code); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to follow room")
	}

	state, ok := s.latest[code]
	if !ok {
		return nil, false
	}
	event, err := NewSnapshotEvent(state)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to build snapshot event")
		return nil, false
	}
	return event, true
}

// Release drops one client of code. After the last one leaves the room is
// no longer followed and its snapshot is forgotten.
func (s *Service) Release(code string) {
	s.mu.Lock()
	feed, ok := s.feeds[code]
	if !ok {
		s.mu.Unlock()
		return
	}
	feed.clients--
	if feed.clients > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.feeds, code)
	delete(s.latest, code)
	s.mu.Unlock()

	feed.channel.Close()
	log.Info().Str("room_code", code).Msg("stopped following room")
}

func (s *Service) openFeedLocked(code string) error {
	channel := roomsync.NewChannel(s.store, nil, nil, nil, nil)
	sub, err := channel.Subscribe(s.ctx, code)
	if err != nil {
		return err
	}

	feed := &roomFeed{channel: channel, sub: sub, clients: 1, done: make(chan struct{})}
	s.feeds[code] = feed

	go func() {
		defer close(feed.done)
		for state := range sub.Updates() {
			s.publish(state)
		}
	}()

	log.Info().Str("room_code", code).Msg("following room")
	return nil
}

func (s *Service) publish(state models.GameState) {
	s.mu.Lock()
	if _, following := s.feeds[state.RoomCode]; !following {
		s.mu.Unlock()
		return
	}
	if prev, ok := s.latest[state.RoomCode]; ok && prev.Timestamp > state.Timestamp {
		s.mu.Unlock()
		return
	}
	s.latest[state.RoomCode] = state
	s.mu.Unlock()

	event, err := NewSnapshotEvent(state)
	if err != nil {
		log.Error().Err(err).Str("room_code", state.RoomCode).Msg("failed to build snapshot event")
		return
	}
	s.connectionManager.BroadcastToRoom(state.RoomCode, event)
}

// Latest returns the newest snapshot seen for code.
func (s *Service) Latest(code string) (models.GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.latest[code]
	return state.Clone(), ok
}

// Snapshot returns the newest snapshot of code. Followed rooms answer from
// memory; other rooms are looked up with a short-lived subscription that
// waits until ctx is done. ok is false when the room has no snapshot.
func (s *Service) Snapshot(ctx context.Context, code string) (models.GameState, bool, error) {
	s.mu.Lock()
	_, following := s.feeds[code]
	state, known := s.latest[code]
	s.mu.Unlock()
	if following && known {
		return state.Clone(), true, nil
	}

	channel := roomsync.NewChannel(s.store, nil, nil, nil, nil)
	defer channel.Close()

	sub, err := channel.Subscribe(ctx, code)
	if err != nil {
		return models.GameState{}, false, err
	}
	select {
	case state, ok := <-sub.Updates():
		return state, ok, nil
	case <-ctx.Done():
		return models.GameState{}, false, nil
	}
}

// RegisterRoutes mounts the WebSocket and state routes on r.
func (s *Service) RegisterRoutes(r chi.Router) {
	s.wsHandler.RegisterRoutes(r)
	s.stateHandler.RegisterRoutes(r)
}

// GetStats returns connection statistics.
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
