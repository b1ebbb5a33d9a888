package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gamemate/go/internal/roomcode"
)

// WebSocketHandler handles WebSocket upgrade requests for room viewers
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleRoomConnection handles GET /ws/room?code=AB12
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("code")
	if raw == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	code := roomcode.Normalize(raw)
	if !roomcode.Validate(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, code); err != nil {
		// The upgrader has already written the HTTP error.
		log.Error().
			Err(err).
			Str("room_code", code).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes on r
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/room", h.HandleRoomConnection)
	r.Get("/ws/stats", h.HandleConnectionStats)
}
