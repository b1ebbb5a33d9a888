package roomsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/cache"
	"github.com/mcdev12/gamemate/go/internal/ledger"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
	"github.com/mcdev12/gamemate/go/internal/roomcode"
)

var (
	ErrSubmitInFlight = errors.New("a submission is already in flight")
	ErrNotOpen        = errors.New("session not open")
	ErrAlreadyOpen    = errors.New("session already open")
)

// SubmitMode selects how a submitted round is applied.
type SubmitMode int

const (
	// ModeAdd appends a new round.
	ModeAdd SubmitMode = iota
	// ModeEdit replaces the last round.
	ModeEdit
)

func (m SubmitMode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "add"
}

// Config holds a Session's collaborators.
type Config struct {
	Cache *cache.Cache
	Store remote.Store
	Clock clockwork.Clock
	Codes *roomcode.Generator

	// Roster is the host's player list. Viewers display whatever the room
	// publishes instead.
	Roster []models.Player

	WriteTimeout time.Duration

	// OnChange, if set, is called with the new local state after every
	// adoption and every local mutation. It must not call back into the
	// Session synchronously.
	OnChange func(models.GameState)
}

// Session is one client's view of its room. All state mutation happens under
// one mutex; the only concurrency is between the subscription feed and at
// most one outstanding publish.
type Session struct {
	cfg   Config
	guard *Guard
	names []string

	mu         sync.Mutex
	roles      *RoleController
	channel    *Channel
	sub        *Subscription
	state      models.GameState
	lastStamp  int64 // newest timestamp written, cached or adopted; orders writes
	liveStamp  int64 // newest timestamp delivered or written in the current room
	submitting bool
	open       bool

	loops sync.WaitGroup
}

func NewSession(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Codes == nil {
		cfg.Codes = roomcode.NewRandomGenerator()
	}
	return &Session{
		cfg:   cfg,
		guard: NewGuard(cfg.Clock, cfg.WriteTimeout),
		names: models.PlayerNames(cfg.Roster),
	}
}

// Open resolves the role, restores cached state unless the room was just
// switched to, and starts following the room.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return ErrAlreadyOpen
	}
	if err := s.initLocked(ctx); err != nil {
		return err
	}
	s.open = true
	return nil
}

// initLocked builds a fresh RoleController and Channel pair and subscribes.
func (s *Session) initLocked(ctx context.Context) error {
	roles := NewRoleController(s.cfg.Cache, s.cfg.Codes)
	role, err := roles.Start(ctx)
	if err != nil {
		return fmt.Errorf("start role controller: %w", err)
	}
	code := roles.RoomCode()

	state := models.GameState{RoomCode: code}
	if role == models.RoleHost {
		state.Players = append([]string(nil), s.names...)
	}

	justJoined, err := s.cfg.Cache.ConsumeJustJoined(ctx)
	if err != nil {
		return fmt.Errorf("read just-joined flag: %w", err)
	}
	if !justJoined {
		state, err = s.restoreLocked(ctx, role, state)
		if err != nil {
			return err
		}
	}

	channel := NewChannel(s.cfg.Store, roles, s.guard, s.cfg.Clock, models.PlayerIDs(s.cfg.Roster))
	sub, err := channel.Subscribe(ctx, code)
	if err != nil {
		return err
	}

	s.roles = roles
	s.channel = channel
	s.sub = sub
	s.state = ledger.Normalize(state)
	s.lastStamp = max(s.lastStamp, state.Timestamp)
	s.liveStamp = 0

	loopCtx := context.WithoutCancel(ctx)
	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		for update := range sub.Updates() {
			s.adopt(loopCtx, sub, update)
		}
	}()

	log.Info().
		Str("role", string(role)).
		Str("room_code", code).
		Int("rounds", len(s.state.Rounds)).
		Bool("just_joined", justJoined).
		Msg("session opened")
	s.notify(s.state.Clone())
	return nil
}

// restoreLocked applies the cached projection for role. A host only restores
// rows recorded for its own roster.
func (s *Session) restoreLocked(ctx context.Context, role models.Role, state models.GameState) (models.GameState, error) {
	p, ok, err := s.cfg.Cache.LoadProjection(ctx, role, state.RoomCode)
	if err != nil {
		return state, fmt.Errorf("load cached projection: %w", err)
	}
	if !ok {
		return state, nil
	}
	if role == models.RoleHost && len(p.Players) > 0 && !slices.Equal(p.Players, s.names) {
		log.Debug().Str("room_code", state.RoomCode).Msg("cached projection recorded for another roster, ignoring")
		return state, nil
	}

	restored := p.State(state.RoomCode)
	if role == models.RoleHost {
		restored.Players = state.Players
	}
	log.Debug().
		Str("room_code", state.RoomCode).
		Int("rounds", len(restored.Rounds)).
		Msg("restored cached projection")
	return restored, nil
}

// adopt applies a snapshot delivered on sub. Viewers take every snapshot;
// a host takes only snapshots of its own roster. Snapshots older than the
// newest one delivered or written since the room was opened are stale and
// dropped; a restored cache never fences live data.
func (s *Session) adopt(ctx context.Context, sub *Subscription, update models.GameState) {
	s.mu.Lock()
	if s.sub != sub || update.RoomCode != s.roles.RoomCode() {
		s.mu.Unlock()
		return
	}
	role := s.roles.Role()
	if role == models.RoleHost && !update.SamePlayers(s.names) {
		s.mu.Unlock()
		log.Debug().
			Str("room_code", update.RoomCode).
			Strs("players", update.Players).
			Msg("discarding snapshot for another roster")
		return
	}
	if update.Timestamp < s.liveStamp {
		s.mu.Unlock()
		log.Debug().
			Int64("timestamp", update.Timestamp).
			Int64("last", s.liveStamp).
			Msg("discarding stale snapshot")
		return
	}

	s.state = update
	s.liveStamp = update.Timestamp
	s.lastStamp = max(s.lastStamp, update.Timestamp)
	s.saveLocked(ctx)
	state := s.state.Clone()
	s.mu.Unlock()

	log.Debug().
		Str("room_code", update.RoomCode).
		Int("rounds", len(update.Rounds)).
		Int64("timestamp", update.Timestamp).
		Msg("adopted snapshot")
	s.notify(state)
}

// SubmitRound applies values locally, then publishes the full snapshot. The
// local change stays even when publishing fails.
func (s *Session) SubmitRound(ctx context.Context, mode SubmitMode, values []string) (remote.DocumentRef, error) {
	return s.commit(ctx, "submit "+mode.String()+" round", func(state models.GameState) (models.GameState, error) {
		if mode == ModeEdit {
			return ledger.OverwriteLastRound(state, values)
		}
		return ledger.AppendRound(state, values), nil
	})
}

// EditCell replaces one slot of any round.
func (s *Session) EditCell(ctx context.Context, round, player int, value string) (remote.DocumentRef, error) {
	return s.commit(ctx, "edit cell", func(state models.GameState) (models.GameState, error) {
		return ledger.SetCell(state, round, player, value)
	})
}

// SetMaxScore sets the elimination cap. Zero clears it.
func (s *Session) SetMaxScore(ctx context.Context, maxScore int) (remote.DocumentRef, error) {
	return s.commit(ctx, "set max score", func(state models.GameState) (models.GameState, error) {
		if maxScore == 0 {
			return ledger.ClearMaxScore(state), nil
		}
		return ledger.SetMaxScore(state, maxScore)
	})
}

func (s *Session) commit(ctx context.Context, op string, mutate func(models.GameState) (models.GameState, error)) (remote.DocumentRef, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return remote.DocumentRef{}, ErrNotOpen
	}
	if err := s.roles.AuthorizeWrite(); err != nil {
		s.mu.Unlock()
		return remote.DocumentRef{}, fmt.Errorf("%s: %w", op, err)
	}
	if s.submitting {
		s.mu.Unlock()
		return remote.DocumentRef{}, ErrSubmitInFlight
	}

	next, err := mutate(s.state)
	if err != nil {
		s.mu.Unlock()
		return remote.DocumentRef{}, fmt.Errorf("%s: %w", op, err)
	}
	next.Timestamp = s.nextTimestampLocked()
	s.state = next
	s.submitting = true
	s.saveLocked(ctx)
	channel := s.channel
	state := next.Clone()
	s.mu.Unlock()

	s.notify(state)

	ref, err := channel.Publish(ctx, state)

	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()

	if err != nil {
		log.Warn().
			Err(err).
			Str("room_code", state.RoomCode).
			Str("op", op).
			Msg("publish failed, keeping local state")
		return remote.DocumentRef{}, fmt.Errorf("%s: %w", op, err)
	}
	return ref, nil
}

// nextTimestampLocked returns a write time strictly greater than any seen.
func (s *Session) nextTimestampLocked() int64 {
	ts := s.cfg.Clock.Now().UnixMilli()
	if ts <= s.lastStamp {
		ts = s.lastStamp + 1
	}
	s.lastStamp = ts
	s.liveStamp = ts
	return ts
}

func (s *Session) saveLocked(ctx context.Context) {
	err := s.cfg.Cache.SaveProjection(ctx, s.roles.Role(), s.state.RoomCode, cache.ProjectionOf(s.state))
	if err != nil {
		log.Error().Err(err).Str("room_code", s.state.RoomCode).Msg("failed to cache state")
	}
}

// JoinRoom tears down the current room and re-opens as a viewer of code.
func (s *Session) JoinRoom(ctx context.Context, code string) error {
	return s.switchRoom(ctx, "join room", func(r *RoleController) error {
		_, err := r.JoinRoom(ctx, code)
		return err
	})
}

// CreateRoom tears down the current room and re-opens as host of a new one.
func (s *Session) CreateRoom(ctx context.Context) (string, error) {
	err := s.switchRoom(ctx, "create room", func(r *RoleController) error {
		_, err := r.CreateRoom(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	return s.RoomCode(), nil
}

// ExitViewer leaves viewer mode and re-opens as host of a new room.
func (s *Session) ExitViewer(ctx context.Context) error {
	return s.switchRoom(ctx, "exit viewer", func(r *RoleController) error {
		return r.ExitViewer(ctx)
	})
}

func (s *Session) switchRoom(ctx context.Context, op string, action func(*RoleController) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}
	if s.submitting {
		return ErrSubmitInFlight
	}
	if err := action(s.roles); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.teardownLocked()
	if err := s.initLocked(ctx); err != nil {
		s.open = false
		return fmt.Errorf("%s: reinitialize: %w", op, err)
	}
	return nil
}

func (s *Session) teardownLocked() {
	if s.channel != nil {
		s.channel.Close()
	}
	s.sub = nil
	s.channel = nil
}

// Close stops following the room and waits for the feed to drain.
func (s *Session) Close() {
	s.mu.Lock()
	s.teardownLocked()
	s.open = false
	s.mu.Unlock()

	s.loops.Wait()
}

// State returns a copy of the local game state.
func (s *Session) State() models.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) Role() models.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		return models.RoleUninitialized
	}
	return s.roles.Role()
}

func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		return ""
	}
	return s.roles.RoomCode()
}

// LiveDelivered is closed once the current room's subscription has delivered
// its first snapshot. It is nil before Open.
func (s *Session) LiveDelivered() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.sub.Delivered()
}

func (s *Session) notify(state models.GameState) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(state)
	}
}
