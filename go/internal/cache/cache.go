// Package cache is the device-local fallback store. It keeps the current room
// code, the viewer flag, the one-shot "just joined" flag, and one projection of
// the game state per room per role. Nothing in here is synchronized with other
// devices.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/models"
)

// ErrCacheCorrupt marks cache contents that failed to parse. Callers of Cache
// never see it: corrupt entries are logged and treated as missing.
var ErrCacheCorrupt = errors.New("cache corrupt")

const (
	keyRoomCode   = "room_code"
	keyViewerMode = "viewer_mode"
	keyJustJoined = "just_joined"

	keyRounds    = "rounds"
	keyMaxScore  = "max_score"
	keyPlayers   = "players"
	keyTimestamp = "timestamp"
)

// Projection is the cached slice of a GameState for one room and role.
type Projection struct {
	Players   []string
	Rounds    []models.Round
	MaxScore  *int
	Timestamp int64
}

// State rebuilds a GameState for code from the projection.
func (p Projection) State(code string) models.GameState {
	return models.GameState{
		RoomCode:  code,
		Players:   p.Players,
		Rounds:    p.Rounds,
		MaxScore:  p.MaxScore,
		Timestamp: p.Timestamp,
	}
}

// ProjectionOf extracts the cached fields of state.
func ProjectionOf(state models.GameState) Projection {
	s := state.Clone()
	return Projection{
		Players:   s.Players,
		Rounds:    s.Rounds,
		MaxScore:  s.MaxScore,
		Timestamp: s.Timestamp,
	}
}

// Cache namespaces all keys under a device prefix.
type Cache struct {
	kv        KV
	namespace string
}

// New creates a Cache over kv. namespace separates devices or profiles that
// share one backend.
func New(kv KV, namespace string) *Cache {
	return &Cache{kv: kv, namespace: namespace}
}

func (c *Cache) key(parts ...string) string {
	k := c.namespace
	for _, p := range parts {
		k += "/" + p
	}
	return k
}

func (c *Cache) projectionKeys(role models.Role, code string) (rounds, maxScore, players, timestamp string) {
	r := string(role)
	return c.key(keyRounds, r, code), c.key(keyMaxScore, r, code), c.key(keyPlayers, r, code), c.key(keyTimestamp, r, code)
}

// SaveProjection overwrites the projection for role and code.
func (c *Cache) SaveProjection(ctx context.Context, role models.Role, code string, p Projection) error {
	roundsKey, maxKey, playersKey, tsKey := c.projectionKeys(role, code)

	rounds, err := json.Marshal(p.Rounds)
	if err != nil {
		return fmt.Errorf("marshal rounds: %w", err)
	}
	players, err := json.Marshal(p.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	maxScore := "0"
	if p.MaxScore != nil {
		maxScore = strconv.Itoa(*p.MaxScore)
	}

	err = c.kv.Put(ctx, map[string]string{
		roundsKey:  string(rounds),
		maxKey:     maxScore,
		playersKey: string(players),
		tsKey:      strconv.FormatInt(p.Timestamp, 10),
	})
	if err != nil {
		return fmt.Errorf("save projection: %w", err)
	}
	return nil
}

// LoadProjection returns the cached projection for role and code. ok is false
// when nothing usable is cached, including when the entry is corrupt.
func (c *Cache) LoadProjection(ctx context.Context, role models.Role, code string) (p Projection, ok bool, err error) {
	p, ok, err = c.loadProjection(ctx, role, code)
	if errors.Is(err, ErrCacheCorrupt) {
		log.Warn().
			Err(err).
			Str("room_code", code).
			Str("role", string(role)).
			Msg("discarding corrupt cached projection")
		if clearErr := c.ClearProjection(ctx, role, code); clearErr != nil {
			log.Error().Err(clearErr).Str("room_code", code).Msg("failed to clear corrupt projection")
		}
		return Projection{}, false, nil
	}
	return p, ok, err
}

func (c *Cache) loadProjection(ctx context.Context, role models.Role, code string) (Projection, bool, error) {
	roundsKey, maxKey, playersKey, tsKey := c.projectionKeys(role, code)

	rawRounds, ok, err := c.kv.Get(ctx, roundsKey)
	if err != nil {
		return Projection{}, false, err
	}
	if !ok {
		return Projection{}, false, nil
	}

	var p Projection
	if err := json.Unmarshal([]byte(rawRounds), &p.Rounds); err != nil {
		return Projection{}, false, fmt.Errorf("rounds: %w: %v", ErrCacheCorrupt, err)
	}

	if raw, ok, err := c.kv.Get(ctx, playersKey); err != nil {
		return Projection{}, false, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &p.Players); err != nil {
			return Projection{}, false, fmt.Errorf("players: %w: %v", ErrCacheCorrupt, err)
		}
	}

	if raw, ok, err := c.kv.Get(ctx, maxKey); err != nil {
		return Projection{}, false, err
	} else if ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Projection{}, false, fmt.Errorf("max score: %w: %v", ErrCacheCorrupt, err)
		}
		if n > 0 {
			p.MaxScore = &n
		}
	}

	if raw, ok, err := c.kv.Get(ctx, tsKey); err != nil {
		return Projection{}, false, err
	} else if ok {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Projection{}, false, fmt.Errorf("timestamp: %w: %v", ErrCacheCorrupt, err)
		}
		p.Timestamp = ts
	}

	return p, true, nil
}

// ClearProjection removes the projection for role and code.
func (c *Cache) ClearProjection(ctx context.Context, role models.Role, code string) error {
	roundsKey, maxKey, playersKey, tsKey := c.projectionKeys(role, code)
	if err := c.kv.Delete(ctx, roundsKey, maxKey, playersKey, tsKey); err != nil {
		return fmt.Errorf("clear projection: %w", err)
	}
	return nil
}

// RoomCode returns the stored room code.
func (c *Cache) RoomCode(ctx context.Context) (string, bool, error) {
	return c.kv.Get(ctx, c.key(keyRoomCode))
}

// SetRoomCode stores the current room code.
func (c *Cache) SetRoomCode(ctx context.Context, code string) error {
	return c.kv.Put(ctx, map[string]string{c.key(keyRoomCode): code})
}

// ClearRoomCode forgets the current room code.
func (c *Cache) ClearRoomCode(ctx context.Context) error {
	return c.kv.Delete(ctx, c.key(keyRoomCode))
}

// ViewerMode reports whether the viewer flag is set. An unparseable flag is
// treated as unset.
func (c *Cache) ViewerMode(ctx context.Context) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, c.key(keyViewerMode))
	if err != nil || !ok {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().
			Err(fmt.Errorf("viewer flag: %w: %v", ErrCacheCorrupt, err)).
			Str("value", raw).
			Msg("ignoring corrupt viewer flag")
		return false, nil
	}
	return v, nil
}

// SetViewerMode stores the viewer flag.
func (c *Cache) SetViewerMode(ctx context.Context, viewer bool) error {
	if !viewer {
		return c.kv.Delete(ctx, c.key(keyViewerMode))
	}
	return c.kv.Put(ctx, map[string]string{c.key(keyViewerMode): "true"})
}

// MarkJustJoined sets the one-shot flag read by ConsumeJustJoined.
func (c *Cache) MarkJustJoined(ctx context.Context) error {
	return c.kv.Put(ctx, map[string]string{c.key(keyJustJoined): "true"})
}

// ConsumeJustJoined reports whether the flag was set and clears it.
func (c *Cache) ConsumeJustJoined(ctx context.Context) (bool, error) {
	k := c.key(keyJustJoined)
	_, ok, err := c.kv.Get(ctx, k)
	if err != nil || !ok {
		return false, err
	}
	if err := c.kv.Delete(ctx, k); err != nil {
		return true, fmt.Errorf("clear just-joined flag: %w", err)
	}
	return true, nil
}
