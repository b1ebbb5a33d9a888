package roomsync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/gamemate/go/internal/ledger"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
)

// MaxRounds bounds how many rounds a decoded document may carry. Remote data
// is untrusted: counts and score keys past it are dropped.
const MaxRounds = 1000

func scoreKey(round, player int) string {
	return fmt.Sprintf("round%d_player%d", round, player)
}

// parseScoreKey is the inverse of scoreKey.
func parseScoreKey(key string) (round, player int, ok bool) {
	rest, found := strings.CutPrefix(key, "round")
	if !found {
		return 0, 0, false
	}
	r, p, found := strings.Cut(rest, "_player")
	if !found {
		return 0, 0, false
	}
	round, err := strconv.Atoi(r)
	if err != nil || round < 0 {
		return 0, 0, false
	}
	player, err = strconv.Atoi(p)
	if err != nil || player < 0 {
		return 0, 0, false
	}
	return round, player, true
}

// EncodeState builds the remote document for state. playerIDs may be nil.
func EncodeState(state models.GameState, playerIDs []string, now time.Time) remote.Document {
	state = ledger.Normalize(state)

	scores := make(map[string]string, len(state.Rounds)*len(state.Players))
	for r, round := range state.Rounds {
		for p, slot := range round {
			scores[scoreKey(r, p)] = slot
		}
	}

	totals := make(map[string]int, len(state.Players))
	for p, name := range state.Players {
		totals[name] = ledger.PlayerTotal(state, p)
	}

	maxScore := 0
	if state.MaxScore != nil {
		maxScore = *state.MaxScore
	}

	return remote.Document{
		GameID:       state.RoomCode,
		Players:      state.Players,
		PlayerIDs:    playerIDs,
		Scores:       scores,
		MaxScore:     maxScore,
		TotalRounds:  len(state.Rounds),
		PlayerTotals: totals,
		CreatedAt:    now.UTC().Format(remote.CreatedAtLayout),
		Timestamp:    state.Timestamp,
	}
}

// DecodeDocument rebuilds a rectangular GameState from doc. Score keys beyond
// the roster or past MaxRounds are dropped; rounds missing from the map come
// back empty.
func DecodeDocument(doc remote.Document) models.GameState {
	rounds := min(max(doc.TotalRounds, 0), MaxRounds)
	for key := range doc.Scores {
		if r, _, ok := decodableKey(key, len(doc.Players)); ok && r+1 > rounds {
			rounds = r + 1
		}
	}

	state := models.GameState{
		RoomCode:  doc.GameID,
		Players:   append([]string(nil), doc.Players...),
		Rounds:    make([]models.Round, rounds),
		Timestamp: doc.Timestamp,
	}
	for r := range state.Rounds {
		state.Rounds[r] = make(models.Round, len(doc.Players))
	}
	for key, slot := range doc.Scores {
		r, p, ok := decodableKey(key, len(doc.Players))
		if !ok {
			continue
		}
		state.Rounds[r][p] = slot
	}
	if doc.MaxScore > 0 {
		n := doc.MaxScore
		state.MaxScore = &n
	}
	return ledger.Normalize(state)
}

// decodableKey parses key and reports whether it addresses a slot inside the
// roster and below MaxRounds.
func decodableKey(key string, players int) (round, player int, ok bool) {
	round, player, ok = parseScoreKey(key)
	if !ok || round >= MaxRounds || player >= players {
		return 0, 0, false
	}
	return round, player, true
}
