package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gamemate/go/internal/cache"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/remote"
	"github.com/mcdev12/gamemate/go/internal/roomcode"
	"github.com/mcdev12/gamemate/go/internal/roomsync"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
		ok   bool
	}{
		{line: "", ok: false},
		{line: "   ", ok: false},
		{line: "show", want: command{name: "show", args: []string{}}, ok: true},
		{line: "  ADD 10  20 ", want: command{name: "add", args: []string{"10", "20"}}, ok: true},
		{line: "join ab12", want: command{name: "join", args: []string{"ab12"}}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseCommand(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func newHostSheet(t *testing.T) (sheet, *remote.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	c := cache.New(cache.NewMemoryKV(), "test")
	require.NoError(t, c.SetRoomCode(ctx, "AB12"))

	store := remote.NewMemoryStore()
	session := roomsync.NewSession(roomsync.Config{
		Cache:  c,
		Store:  store,
		Codes:  roomcode.NewGenerator(rand.NewPCG(1, 2)),
		Roster: []models.Player{{ID: "p-1", Name: "Ana"}, {ID: "p-2", Name: "Bo"}},
	})
	require.NoError(t, session.Open(ctx))
	t.Cleanup(session.Close)
	return sessionSheet{session}, store
}

func exec(t *testing.T, s sheet, line string) (string, error) {
	t.Helper()
	cmd, ok := parseCommand(line)
	require.True(t, ok)
	var out bytes.Buffer
	err := execute(context.Background(), s, cmd, &out)
	return out.String(), err
}

func TestExecute_HostEditsSheet(t *testing.T) {
	s, store := newHostSheet(t)
	require.Equal(t, models.RoleHost, s.Role())

	_, err := exec(t, s, "add 10 20")
	require.NoError(t, err)
	_, err = exec(t, s, "add 5 5")
	require.NoError(t, err)
	_, err = exec(t, s, "edit 7 8")
	require.NoError(t, err)
	_, err = exec(t, s, "cell 1 2 25")
	require.NoError(t, err)
	_, err = exec(t, s, "max 30")
	require.NoError(t, err)

	state := s.State()
	assert.Equal(t, []models.Round{{"10", "25"}, {"7", "8"}}, state.Rounds)
	require.NotNil(t, state.MaxScore)
	assert.Equal(t, 30, *state.MaxScore)
	assert.Len(t, store.Documents("AB12"), 5)

	out, err := exec(t, s, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "room AB12 (host), max 30")
	assert.Contains(t, out, "total  17")
	assert.Contains(t, out, "OUT")
}

func TestExecute_Errors(t *testing.T) {
	s, _ := newHostSheet(t)

	tests := []struct {
		line string
		is   error
	}{
		{line: "cell 1 x 3"},
		{line: "cell 1 2"},
		{line: "max many"},
		{line: "add"},
		{line: "join"},
		{line: "frobnicate"},
		{line: "join nope", is: roomsync.ErrInvalidRoomCode},
		{line: "exit", is: roomsync.ErrNotViewer},
		{line: "quit", is: errQuit},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := exec(t, s, tt.line)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestExecute_SwitchRooms(t *testing.T) {
	s, _ := newHostSheet(t)

	out, err := exec(t, s, "join cd34")
	require.NoError(t, err)
	assert.Equal(t, "viewing room CD34\n", out)
	assert.Equal(t, models.RoleViewer, s.Role())

	_, err = exec(t, s, "add 1 2")
	assert.ErrorIs(t, err, roomsync.ErrRoleViolation)

	out, err = exec(t, s, "exit")
	require.NoError(t, err)
	assert.Equal(t, models.RoleHost, s.Role())
	assert.Contains(t, out, "hosting room "+s.RoomCode())

	out, err = exec(t, s, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "commands:")
}
