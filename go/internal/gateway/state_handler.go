package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/roomcode"
)

// StateProvider looks up the newest snapshot of a room. ok is false when the
// room has none.
type StateProvider interface {
	Snapshot(ctx context.Context, code string) (state models.GameState, ok bool, err error)
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
	lookupTimeout time.Duration
}

// NewStateHandler creates a new state handler. A lookup that finds nothing
// within lookupTimeout answers 404.
func NewStateHandler(provider StateProvider, lookupTimeout time.Duration) *StateHandler {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultConfig().LookupTimeout
	}
	return &StateHandler{
		stateProvider: provider,
		lookupTimeout: lookupTimeout,
	}
}

// HandleGetRoomState handles GET /api/rooms/{code}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	code := roomcode.Normalize(chi.URLParam(r, "code"))
	if !roomcode.Validate(code) {
		http.Error(w, "Invalid room code", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.lookupTimeout)
	defer cancel()

	state, ok, err := h.stateProvider.Snapshot(ctx, code)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(NewRoomState(state)); err != nil {
		log.Error().Err(err).Msg("failed to encode room state response")
	}
}

// RegisterRoutes registers state routes on r
func (h *StateHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/rooms/{code}/state", h.HandleGetRoomState)
}
