package roomsync

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gamemate/go/internal/cache"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/roomcode"
)

func seededCodes() *roomcode.Generator {
	return roomcode.NewGenerator(rand.NewPCG(7, 11))
}

func newTestCache() *cache.Cache {
	return cache.New(cache.NewMemoryKV(), "device")
}

func startRole(t *testing.T, c *cache.Cache) *RoleController {
	t.Helper()
	r := NewRoleController(c, seededCodes())
	_, err := r.Start(context.Background())
	require.NoError(t, err)
	return r
}

func TestRoleController_Start(t *testing.T) {
	firstCode := seededCodes().Generate()

	tests := []struct {
		name     string
		seed     func(ctx context.Context, c *cache.Cache)
		wantRole models.Role
		wantCode string
	}{
		{
			name:     "nothing stored hosts a fresh room",
			seed:     func(ctx context.Context, c *cache.Cache) {},
			wantRole: models.RoleHost,
			wantCode: firstCode,
		},
		{
			name: "stored code without viewer flag hosts it",
			seed: func(ctx context.Context, c *cache.Cache) {
				require.NoError(t, c.SetRoomCode(ctx, "QX42"))
			},
			wantRole: models.RoleHost,
			wantCode: "QX42",
		},
		{
			name: "viewer flag with code views it",
			seed: func(ctx context.Context, c *cache.Cache) {
				require.NoError(t, c.SetRoomCode(ctx, "QX42"))
				require.NoError(t, c.SetViewerMode(ctx, true))
			},
			wantRole: models.RoleViewer,
			wantCode: "QX42",
		},
		{
			name: "viewer flag without code falls back to host",
			seed: func(ctx context.Context, c *cache.Cache) {
				require.NoError(t, c.SetViewerMode(ctx, true))
			},
			wantRole: models.RoleHost,
			wantCode: firstCode,
		},
		{
			name: "invalid stored code is replaced",
			seed: func(ctx context.Context, c *cache.Cache) {
				require.NoError(t, c.SetRoomCode(ctx, "12AB"))
			},
			wantRole: models.RoleHost,
			wantCode: firstCode,
		},
		{
			name: "lowercase stored code is normalized",
			seed: func(ctx context.Context, c *cache.Cache) {
				require.NoError(t, c.SetRoomCode(ctx, "qx42"))
			},
			wantRole: models.RoleHost,
			wantCode: "QX42",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCache()
			tc.seed(ctx, c)

			r := NewRoleController(c, seededCodes())
			role, err := r.Start(ctx)
			require.NoError(t, err)

			assert.Equal(t, tc.wantRole, role)
			assert.Equal(t, tc.wantRole, r.Role())
			assert.Equal(t, tc.wantCode, r.RoomCode())

			if tc.wantRole == models.RoleHost {
				stored, ok, err := c.RoomCode(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, roomcode.Normalize(stored), tc.wantCode)

				viewer, err := c.ViewerMode(ctx)
				require.NoError(t, err)
				assert.False(t, viewer)
			}
		})
	}
}

func TestRoleController_StartTwice(t *testing.T) {
	r := startRole(t, newTestCache())
	role, err := r.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, models.RoleHost, role)
}

func TestRoleController_AuthorizeWrite(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	r := NewRoleController(c, seededCodes())
	assert.ErrorIs(t, r.AuthorizeWrite(), ErrRoleViolation, "uninitialized")

	_, err := r.Start(ctx)
	require.NoError(t, err)
	assert.NoError(t, r.AuthorizeWrite(), "host")

	_, err = r.JoinRoom(ctx, "ZZ99")
	require.NoError(t, err)
	assert.ErrorIs(t, r.AuthorizeWrite(), ErrRoleViolation, "after switching")

	viewer := startRole(t, c)
	require.Equal(t, models.RoleViewer, viewer.Role())
	assert.ErrorIs(t, viewer.AuthorizeWrite(), ErrRoleViolation, "viewer")
}

func TestRoleController_JoinRoomClearsHostState(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	host := startRole(t, c)
	hostCode := host.RoomCode()

	require.NoError(t, c.SaveProjection(ctx, models.RoleHost, hostCode, cache.Projection{
		Players: []string{"Ana", "Bo"},
		Rounds:  []models.Round{{"1", "2"}},
	}))

	code, err := host.JoinRoom(ctx, " zz99 ")
	require.NoError(t, err)
	assert.Equal(t, "ZZ99", code)
	assert.Equal(t, models.RoleUninitialized, host.Role())
	assert.Empty(t, host.RoomCode())

	_, ok, err := c.LoadProjection(ctx, models.RoleHost, hostCode)
	require.NoError(t, err)
	assert.False(t, ok, "host rows must not survive the switch")

	justJoined, err := c.ConsumeJustJoined(ctx)
	require.NoError(t, err)
	assert.True(t, justJoined)

	viewer := startRole(t, c)
	assert.Equal(t, models.RoleViewer, viewer.Role())
	assert.Equal(t, "ZZ99", viewer.RoomCode())
}

func TestRoleController_JoinRoomRejectsInvalidCode(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	host := startRole(t, c)
	code := host.RoomCode()

	for _, in := range []string{"", "ABC", "A1B2", "ABCD", "AB123"} {
		_, err := host.JoinRoom(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidRoomCode, "%q", in)
	}
	assert.Equal(t, models.RoleHost, host.Role())
	assert.Equal(t, code, host.RoomCode())
}

func TestRoleController_CreateRoomFromViewer(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	require.NoError(t, c.SetRoomCode(ctx, "ZZ99"))
	require.NoError(t, c.SetViewerMode(ctx, true))

	viewer := startRole(t, c)
	require.Equal(t, models.RoleViewer, viewer.Role())
	require.NoError(t, c.SaveProjection(ctx, models.RoleViewer, "ZZ99", cache.Projection{
		Players: []string{"Cy"},
		Rounds:  []models.Round{{"9"}},
	}))

	code, err := viewer.CreateRoom(ctx)
	require.NoError(t, err)
	assert.True(t, roomcode.Validate(code))

	_, ok, err := c.LoadProjection(ctx, models.RoleViewer, "ZZ99")
	require.NoError(t, err)
	assert.False(t, ok)

	host := startRole(t, c)
	assert.Equal(t, models.RoleHost, host.Role())
	assert.Equal(t, code, host.RoomCode())
}

func TestRoleController_ExitViewer(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	host := startRole(t, c)
	assert.ErrorIs(t, host.ExitViewer(ctx), ErrNotViewer)

	_, err := host.JoinRoom(ctx, "ZZ99")
	require.NoError(t, err)
	viewer := startRole(t, c)
	require.Equal(t, models.RoleViewer, viewer.Role())

	require.NoError(t, viewer.ExitViewer(ctx))
	assert.Equal(t, models.RoleUninitialized, viewer.Role())

	_, ok, err := c.RoomCode(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	next := startRole(t, c)
	assert.Equal(t, models.RoleHost, next.Role())
	assert.True(t, roomcode.Validate(next.RoomCode()))
}
