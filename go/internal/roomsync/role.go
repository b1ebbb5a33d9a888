package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/cache"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/roomcode"
)

var (
	ErrRoleViolation   = errors.New("role violation: only the host may write")
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrNotViewer       = errors.New("not in viewer mode")
	ErrAlreadyStarted  = errors.New("role controller already started")
)

// RoleController decides whether this client is the host or a viewer of its
// room. JoinRoom, CreateRoom and ExitViewer persist the new role and leave the
// controller Uninitialized; the caller must build a fresh controller and Start
// it.
type RoleController struct {
	cache *cache.Cache
	codes *roomcode.Generator

	mu   sync.RWMutex
	role models.Role
	code string
}

func NewRoleController(c *cache.Cache, codes *roomcode.Generator) *RoleController {
	if codes == nil {
		codes = roomcode.NewRandomGenerator()
	}
	return &RoleController{cache: c, codes: codes, role: models.RoleUninitialized}
}

// Start resolves the role from the cache: Viewer when the viewer flag and a
// room code are stored, Host of the stored room otherwise, or Host of a
// freshly generated room when nothing usable is stored.
func (r *RoleController) Start(ctx context.Context) (models.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role != models.RoleUninitialized {
		return r.role, ErrAlreadyStarted
	}

	code, ok, err := r.cache.RoomCode(ctx)
	if err != nil {
		return models.RoleUninitialized, fmt.Errorf("read room code: %w", err)
	}
	code = roomcode.Normalize(code)
	if ok && !roomcode.Validate(code) {
		log.Warn().Str("room_code", code).Msg("ignoring invalid stored room code")
		ok = false
	}

	viewer, err := r.cache.ViewerMode(ctx)
	if err != nil {
		return models.RoleUninitialized, fmt.Errorf("read viewer flag: %w", err)
	}

	switch {
	case ok && viewer:
		r.role, r.code = models.RoleViewer, code
	case ok:
		r.role, r.code = models.RoleHost, code
	default:
		if viewer {
			log.Warn().Msg("viewer flag set without a room code, starting as host")
			if err := r.cache.SetViewerMode(ctx, false); err != nil {
				return models.RoleUninitialized, fmt.Errorf("clear viewer flag: %w", err)
			}
		}
		code = r.codes.Generate()
		if err := r.cache.SetRoomCode(ctx, code); err != nil {
			return models.RoleUninitialized, fmt.Errorf("persist room code: %w", err)
		}
		r.role, r.code = models.RoleHost, code
	}

	log.Info().Str("role", string(r.role)).Str("room_code", r.code).Msg("role resolved")
	return r.role, nil
}

// JoinRoom switches to viewing code.
func (r *RoleController) JoinRoom(ctx context.Context, code string) (string, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Validate(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomCode, code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.clearCurrentLocked(ctx); err != nil {
		return "", err
	}
	if err := r.cache.SetRoomCode(ctx, code); err != nil {
		return "", fmt.Errorf("persist room code: %w", err)
	}
	if err := r.cache.SetViewerMode(ctx, true); err != nil {
		return "", fmt.Errorf("persist viewer flag: %w", err)
	}
	if err := r.cache.MarkJustJoined(ctx); err != nil {
		return "", fmt.Errorf("persist just-joined flag: %w", err)
	}

	log.Info().Str("room_code", code).Msg("joined room as viewer")
	r.role, r.code = models.RoleUninitialized, ""
	return code, nil
}

// CreateRoom switches to hosting a freshly generated room.
func (r *RoleController) CreateRoom(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.clearCurrentLocked(ctx); err != nil {
		return "", err
	}
	code := r.codes.Generate()
	if err := r.cache.SetRoomCode(ctx, code); err != nil {
		return "", fmt.Errorf("persist room code: %w", err)
	}
	if err := r.cache.SetViewerMode(ctx, false); err != nil {
		return "", fmt.Errorf("clear viewer flag: %w", err)
	}
	if err := r.cache.MarkJustJoined(ctx); err != nil {
		return "", fmt.Errorf("persist just-joined flag: %w", err)
	}

	log.Info().Str("room_code", code).Msg("created room")
	r.role, r.code = models.RoleUninitialized, ""
	return code, nil
}

// ExitViewer leaves viewer mode. The next Start hosts a new room.
func (r *RoleController) ExitViewer(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role != models.RoleViewer {
		return ErrNotViewer
	}
	if err := r.clearCurrentLocked(ctx); err != nil {
		return err
	}
	if err := r.cache.SetViewerMode(ctx, false); err != nil {
		return fmt.Errorf("clear viewer flag: %w", err)
	}
	if err := r.cache.ClearRoomCode(ctx); err != nil {
		return fmt.Errorf("clear room code: %w", err)
	}

	log.Info().Msg("left viewer mode")
	r.role, r.code = models.RoleUninitialized, ""
	return nil
}

// AuthorizeWrite returns nil only for the host.
func (r *RoleController) AuthorizeWrite() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch r.role {
	case models.RoleHost:
		return nil
	case models.RoleViewer:
		return ErrRoleViolation
	default:
		return fmt.Errorf("%w: role not initialized", ErrRoleViolation)
	}
}

func (r *RoleController) Role() models.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.role
}

func (r *RoleController) RoomCode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.code
}

// clearCurrentLocked drops the cached projection of the role being left.
func (r *RoleController) clearCurrentLocked(ctx context.Context) error {
	if r.role == models.RoleUninitialized || r.code == "" {
		return nil
	}
	if err := r.cache.ClearProjection(ctx, r.role, r.code); err != nil {
		return fmt.Errorf("clear %s projection: %w", r.role, err)
	}
	return nil
}
