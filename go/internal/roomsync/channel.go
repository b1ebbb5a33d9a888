package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
	"github.com/mcdev12/gamemate/go/internal/roomcode"
)

var ErrRoomMismatch = errors.New("snapshot belongs to another room")

// Subscription is a live stream of a room's newest snapshot.
type Subscription struct {
	code      string
	updates   chan models.GameState
	delivered chan struct{}

	mu            sync.Mutex
	closed        bool
	unsubscribe   remote.Unsubscribe
	deliveredOnce sync.Once
}

func newSubscription(code string) *Subscription {
	return &Subscription{
		code:      code,
		updates:   make(chan models.GameState, 1),
		delivered: make(chan struct{}),
	}
}

// RoomCode is the room this subscription follows.
func (s *Subscription) RoomCode() string { return s.code }

// Updates yields snapshots newest-last. A snapshot not yet received is
// replaced by a newer one. The channel is closed by Close.
func (s *Subscription) Updates() <-chan models.GameState { return s.updates }

// Delivered is closed once the first snapshot has been delivered.
func (s *Subscription) Delivered() <-chan struct{} { return s.delivered }

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	log.Debug().Str("room_code", s.code).Msg("subscription closed")
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver never blocks the store's delivery goroutine. It is the only sender,
// and it holds mu, so after draining the stale value the send has room.
func (s *Subscription) deliver(doc remote.Document) {
	state := DecodeDocument(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- state:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- state
	}
	s.deliveredOnce.Do(func() { close(s.delivered) })
}

// Channel connects one client to the remote store: it follows one room at a
// time and publishes snapshots for the host.
type Channel struct {
	store     remote.Store
	roles     *RoleController
	guard     *Guard
	clock     clockwork.Clock
	playerIDs []string

	mu     sync.Mutex
	active *Subscription
}

// NewChannel creates a Channel. playerIDs are attached to published documents.
// A nil roles yields a read-only channel.
func NewChannel(store remote.Store, roles *RoleController, guard *Guard, clock clockwork.Clock, playerIDs []string) *Channel {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if guard == nil {
		guard = NewGuard(clock, 0)
	}
	return &Channel{
		store:     store,
		roles:     roles,
		guard:     guard,
		clock:     clock,
		playerIDs: playerIDs,
	}
}

// Subscribe follows code. Subscribing again to the followed room returns the
// same subscription; subscribing to another room closes the previous one.
func (c *Channel) Subscribe(ctx context.Context, code string) (*Subscription, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Validate(code) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoomCode, code)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		if c.active.code == code && !c.active.isClosed() {
			return c.active, nil
		}
		c.active.Close()
		c.active = nil
	}

	sub := newSubscription(code)
	unsubscribe, err := c.store.Subscribe(ctx, remote.Query{GameID: code, Limit: 1}, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room %s: %w", code, err)
	}
	sub.mu.Lock()
	sub.unsubscribe = unsubscribe
	sub.mu.Unlock()

	c.active = sub
	log.Debug().Str("room_code", code).Msg("subscribed to room")
	return sub, nil
}

// Close closes the active subscription, if any.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Close()
		c.active = nil
	}
}

// Publish writes state as a new document. Non-hosts, and channels built
// without a role controller, fail with ErrRoleViolation before the store is
// contacted.
func (c *Channel) Publish(ctx context.Context, state models.GameState) (remote.DocumentRef, error) {
	if c.roles == nil {
		return remote.DocumentRef{}, fmt.Errorf("%w: read-only channel", ErrRoleViolation)
	}
	if err := c.roles.AuthorizeWrite(); err != nil {
		return remote.DocumentRef{}, err
	}
	if code := c.roles.RoomCode(); state.RoomCode != code {
		return remote.DocumentRef{}, fmt.Errorf("%w: publishing %q while hosting %q", ErrRoomMismatch, state.RoomCode, code)
	}

	doc := EncodeState(state, c.playerIDs, c.clock.Now())
	ref, err := c.guard.Write(ctx, func(ctx context.Context) (remote.DocumentRef, error) {
		return c.store.Create(ctx, doc)
	}, 0)
	if err != nil {
		return remote.DocumentRef{}, err
	}

	log.Debug().
		Str("room_code", doc.GameID).
		Str("doc_id", ref.ID).
		Int("rounds", doc.TotalRounds).
		Int64("timestamp", doc.Timestamp).
		Msg("snapshot published")
	return ref, nil
}
