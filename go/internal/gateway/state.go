package gateway

import (
	"github.com/mcdev12/gamemate/go/internal/ledger"
	"github.com/mcdev12/gamemate/go/internal/models"
)

// RoomState is the read model served to browsers: the raw rounds plus the
// derived standing of each player.
type RoomState struct {
	RoomCode  string           `json:"room_code"`
	Players   []PlayerStanding `json:"players"`
	Rounds    []models.Round   `json:"rounds"`
	MaxScore  *int             `json:"max_score,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// PlayerStanding is one player's derived values.
type PlayerStanding struct {
	Name      string           `json:"name"`
	Total     int              `json:"total"`
	IsOut     bool             `json:"is_out"`
	Remaining ledger.Remaining `json:"remaining"`
}

// NewRoomState derives the room view of state.
func NewRoomState(state models.GameState) RoomState {
	state = ledger.Normalize(state)

	standings := make([]PlayerStanding, len(state.Players))
	for i, name := range state.Players {
		standings[i] = PlayerStanding{
			Name:      name,
			Total:     ledger.PlayerTotal(state, i),
			IsOut:     ledger.IsOut(state, i),
			Remaining: ledger.RemainingFor(state, i),
		}
	}

	rounds := state.Rounds
	if rounds == nil {
		rounds = []models.Round{}
	}
	return RoomState{
		RoomCode:  state.RoomCode,
		Players:   standings,
		Rounds:    rounds,
		MaxScore:  state.MaxScore,
		Timestamp: state.Timestamp,
	}
}
