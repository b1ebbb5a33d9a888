package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gamemate/go/internal/models"
)

// RoomEvent is the envelope pushed to every WebSocket client of a room.
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType names the payload carried by a RoomEvent.
type EventType string

const (
	EventTypeSnapshot EventType = "snapshot"
)

// NewSnapshotEvent wraps the room view of state.
func NewSnapshotEvent(state models.GameState) (*RoomEvent, error) {
	data, err := json.Marshal(NewRoomState(state))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return &RoomEvent{
		ID:        uuid.New().String(),
		RoomCode:  state.RoomCode,
		Type:      EventTypeSnapshot,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// ParseEventPayload decodes the payload of a known event type.
func ParseEventPayload(event *RoomEvent) (any, error) {
	switch event.Type {
	case EventTypeSnapshot:
		var payload RoomState
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	default:
		return nil, nil
	}
}
