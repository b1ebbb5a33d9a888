// Package ledger holds the pure score computations over a GameState. Nothing
// here performs I/O; every function returns a new state and leaves its input
// untouched.
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/gamemate/go/internal/models"
)

// Normalize returns a copy of state whose rounds each have exactly one slot
// per player. Missing slots become empty, extra slots are dropped.
func Normalize(state models.GameState) models.GameState {
	out := state.Clone()
	for i, r := range out.Rounds {
		out.Rounds[i] = fitRound(r, len(out.Players))
	}
	return out
}

// AppendRound adds one round built from values. values[i] defaults to empty
// when missing.
func AppendRound(state models.GameState, values []string) models.GameState {
	out := Normalize(state)
	out.Rounds = append(out.Rounds, fitRound(values, len(out.Players)))
	return out
}

// OverwriteLastRound replaces the final round with values.
func OverwriteLastRound(state models.GameState, values []string) (models.GameState, error) {
	if len(state.Rounds) == 0 {
		return state, ErrEmptyHistory
	}
	out := Normalize(state)
	out.Rounds[len(out.Rounds)-1] = fitRound(values, len(out.Players))
	return out, nil
}

// SetCell replaces a single slot.
func SetCell(state models.GameState, round, player int, value string) (models.GameState, error) {
	if round < 0 || round >= len(state.Rounds) || player < 0 || player >= len(state.Players) {
		return state, fmt.Errorf("round %d player %d: %w", round, player, ErrCellOutOfRange)
	}
	out := Normalize(state)
	out.Rounds[round][player] = value
	return out, nil
}

// SetMaxScore sets the elimination cap.
func SetMaxScore(state models.GameState, maxScore int) (models.GameState, error) {
	if maxScore <= 0 {
		return state, ErrInvalidMaxScore
	}
	out := state.Clone()
	out.MaxScore = &maxScore
	return out, nil
}

// ClearMaxScore removes the elimination cap.
func ClearMaxScore(state models.GameState) models.GameState {
	out := state.Clone()
	out.MaxScore = nil
	return out
}

// PlayerTotal sums a player's slots across all rounds. Empty or non-numeric
// slots count as zero.
func PlayerTotal(state models.GameState, player int) int {
	total := 0
	for _, r := range state.Rounds {
		if player < 0 || player >= len(r) {
			continue
		}
		total += parseSlot(r[player])
	}
	return total
}

// Totals returns PlayerTotal for every player in roster order.
func Totals(state models.GameState) []int {
	totals := make([]int, len(state.Players))
	for i := range state.Players {
		totals[i] = PlayerTotal(state, i)
	}
	return totals
}

// IsOut reports whether a player has reached the max score.
func IsOut(state models.GameState, player int) bool {
	if state.MaxScore == nil {
		return false
	}
	return PlayerTotal(state, player) >= *state.MaxScore
}

// RemainingKind distinguishes the three shapes of a remaining budget.
type RemainingKind int

const (
	RemainingUnset RemainingKind = iota // no max score set
	RemainingOut                        // total is past the cap
	RemainingValue
)

// Remaining is what is left of a player's budget before elimination.
type Remaining struct {
	Kind  RemainingKind
	Value int
}

// String renders the value the way the score sheet shows it.
func (r Remaining) String() string {
	switch r.Kind {
	case RemainingUnset:
		return "—"
	case RemainingOut:
		return "OUT"
	default:
		return strconv.Itoa(r.Value)
	}
}

// MarshalText lets Remaining appear as a plain string in JSON.
func (r Remaining) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (r *Remaining) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "—":
		*r = Remaining{Kind: RemainingUnset}
	case "OUT":
		*r = Remaining{Kind: RemainingOut}
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("remaining %q: %w", s, err)
		}
		*r = Remaining{Kind: RemainingValue, Value: n}
	}
	return nil
}

// RemainingFor computes the player's remaining budget.
func RemainingFor(state models.GameState, player int) Remaining {
	if state.MaxScore == nil {
		return Remaining{Kind: RemainingUnset}
	}
	left := *state.MaxScore - PlayerTotal(state, player)
	if left < 0 {
		return Remaining{Kind: RemainingOut}
	}
	return Remaining{Kind: RemainingValue, Value: left}
}

func parseSlot(slot string) int {
	n, err := strconv.Atoi(strings.TrimSpace(slot))
	if err != nil {
		return 0
	}
	return n
}

func fitRound(values []string, width int) models.Round {
	r := make(models.Round, width)
	copy(r, values)
	return r
}
