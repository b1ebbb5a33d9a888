package roomsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
)

func intPtr(n int) *int { return &n }

func TestEncodeState(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.FixedZone("CET", 3600))
	state := models.GameState{
		RoomCode:  "AB12",
		Players:   []string{"Ana", "Bo"},
		Rounds:    []models.Round{{"30", "40"}, {"75"}},
		MaxScore:  intPtr(100),
		Timestamp: 1700000000123,
	}

	doc := EncodeState(state, []string{"p-1", "p-2"}, now)

	assert.Equal(t, "AB12", doc.GameID)
	assert.Equal(t, []string{"Ana", "Bo"}, doc.Players)
	assert.Equal(t, []string{"p-1", "p-2"}, doc.PlayerIDs)
	assert.Equal(t, map[string]string{
		"round0_player0": "30",
		"round0_player1": "40",
		"round1_player0": "75",
		"round1_player1": "",
	}, doc.Scores)
	assert.Equal(t, 100, doc.MaxScore)
	assert.Equal(t, 2, doc.TotalRounds)
	assert.Equal(t, map[string]int{"Ana": 105, "Bo": 40}, doc.PlayerTotals)
	assert.Equal(t, "2026-03-14T08:26:53.589Z", doc.CreatedAt)
	assert.Equal(t, int64(1700000000123), doc.Timestamp)
}

func TestEncodeState_UnsetMaxScoreIsZero(t *testing.T) {
	doc := EncodeState(models.GameState{RoomCode: "AB12", Players: []string{"Ana"}}, nil, time.Now())
	assert.Zero(t, doc.MaxScore)
	assert.Zero(t, doc.TotalRounds)
	assert.Empty(t, doc.Scores)
}

func TestDecodeDocument_RoundTrip(t *testing.T) {
	state := models.GameState{
		RoomCode:  "AB12",
		Players:   []string{"Ana", "Bo", "Cy"},
		Rounds:    []models.Round{{"1", "", "3"}, {"x", "5", ""}},
		MaxScore:  intPtr(50),
		Timestamp: 42,
	}

	got := DecodeDocument(EncodeState(state, nil, time.Now()))
	assert.Equal(t, state, got)

	state.MaxScore = nil
	got = DecodeDocument(EncodeState(state, nil, time.Now()))
	assert.Nil(t, got.MaxScore)
}

func TestDecodeDocument_NormalizesSparseScores(t *testing.T) {
	doc := remote.Document{
		GameID:      "AB12",
		Players:     []string{"Ana", "Bo"},
		TotalRounds: 1,
		Scores: map[string]string{
			"round0_player0":  "10",
			"round2_player1":  "7",
			"round0_player5":  "99",
			"garbage":         "1",
			"round-1_player0": "1",
		},
		MaxScore: -5,
	}

	got := DecodeDocument(doc)

	require.Len(t, got.Rounds, 3)
	assert.Equal(t, models.Round{"10", ""}, got.Rounds[0])
	assert.Equal(t, models.Round{"", ""}, got.Rounds[1])
	assert.Equal(t, models.Round{"", "7"}, got.Rounds[2])
	assert.Nil(t, got.MaxScore)
}

func TestParseScoreKey(t *testing.T) {
	tests := []struct {
		key           string
		round, player int
		ok            bool
	}{
		{key: "round0_player0", round: 0, player: 0, ok: true},
		{key: "round12_player3", round: 12, player: 3, ok: true},
		{key: "round_player0"},
		{key: "round1player0"},
		{key: "r1_p0"},
		{key: "round1_player-2"},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			r, p, ok := parseScoreKey(tc.key)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.round, r)
				assert.Equal(t, tc.player, p)
				assert.Equal(t, tc.key, scoreKey(r, p))
			}
		})
	}
}

func TestDecodeDocument_BoundsUntrustedSizes(t *testing.T) {
	tests := []struct {
		name       string
		doc        remote.Document
		wantRounds int
	}{
		{
			name:       "negative total rounds",
			doc:        remote.Document{GameID: "AB12", Players: []string{"Ana"}, TotalRounds: -1},
			wantRounds: 0,
		},
		{
			name:       "huge total rounds",
			doc:        remote.Document{GameID: "AB12", Players: []string{"Ana"}, TotalRounds: 1 << 40},
			wantRounds: MaxRounds,
		},
		{
			name: "oversized score key",
			doc: remote.Document{
				GameID:  "AB12",
				Players: []string{"Ana"},
				Scores:  map[string]string{"round20000000_player0": "1", "round0_player0": "7"},
			},
			wantRounds: 1,
		},
		{
			name: "key past the roster does not size rounds",
			doc: remote.Document{
				GameID:  "AB12",
				Players: []string{"Ana"},
				Scores:  map[string]string{"round5_player3": "1"},
			},
			wantRounds: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.GameState
			require.NotPanics(t, func() { got = DecodeDocument(tt.doc) })
			assert.Len(t, got.Rounds, tt.wantRounds)
			for _, r := range got.Rounds {
				assert.Len(t, r, len(tt.doc.Players))
			}
		})
	}
}
