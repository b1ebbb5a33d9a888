package models

import "slices"

// Role defines how a client participates in a room.
type Role string

const (
	RoleUninitialized Role = "UNINITIALIZED"
	RoleHost          Role = "HOST"
	RoleViewer        Role = "VIEWER"
)

// Round holds one raw score entry per player, in roster order. An empty
// string means the slot has not been scored.
type Round []string

// GameState is the unit of synchronization. It is treated as a value: every
// submission produces a new one.
type GameState struct {
	RoomCode  string   `json:"room_code"`
	Players   []string `json:"players"`
	Rounds    []Round  `json:"rounds"`
	MaxScore  *int     `json:"max_score,omitempty"` // nil = no cap set
	Timestamp int64    `json:"timestamp"`           // epoch millis
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s GameState) Clone() GameState {
	out := GameState{
		RoomCode:  s.RoomCode,
		Players:   slices.Clone(s.Players),
		Timestamp: s.Timestamp,
	}
	if s.Rounds != nil {
		out.Rounds = make([]Round, len(s.Rounds))
		for i, r := range s.Rounds {
			out.Rounds[i] = slices.Clone(r)
		}
	}
	if s.MaxScore != nil {
		v := *s.MaxScore
		out.MaxScore = &v
	}
	return out
}

// SamePlayers reports whether the state's roster is an exact ordered,
// case-sensitive match of names.
func (s GameState) SamePlayers(names []string) bool {
	return slices.Equal(s.Players, names)
}
