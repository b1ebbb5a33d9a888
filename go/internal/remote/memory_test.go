package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvDoc(t *testing.T, ch <-chan Document) Document {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for document")
		return Document{}
	}
}

func recvNoDoc(t *testing.T, ch <-chan Document) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("expected no document, got %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func collect(t *testing.T, s Store, gameID string) (<-chan Document, Unsubscribe) {
	t.Helper()
	ch := make(chan Document, 16)
	unsub, err := s.Subscribe(context.Background(), Query{GameID: gameID, Limit: 1}, func(d Document) { ch <- d })
	require.NoError(t, err)
	t.Cleanup(unsub)
	return ch, unsub
}

func TestMemoryStore_SubscribeDeliversExistingHead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Create(ctx, Document{GameID: "AB12", Timestamp: 10, Players: []string{"Ana"}})
	require.NoError(t, err)
	_, err = s.Create(ctx, Document{GameID: "AB12", Timestamp: 20, Players: []string{"Ana", "Bo"}})
	require.NoError(t, err)

	ch, _ := collect(t, s, "AB12")
	d := recvDoc(t, ch)
	assert.Equal(t, int64(20), d.Timestamp)
	assert.NotEmpty(t, d.ID)
	recvNoDoc(t, ch)
}

func TestMemoryStore_FiltersByRoomAndIgnoresOlder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ch, _ := collect(t, s, "AB12")

	_, err := s.Create(ctx, Document{GameID: "CD34", Timestamp: 5})
	require.NoError(t, err)
	recvNoDoc(t, ch)

	_, err = s.Create(ctx, Document{GameID: "AB12", Timestamp: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(100), recvDoc(t, ch).Timestamp)

	// A late write with an older timestamp does not change the newest document.
	_, err = s.Create(ctx, Document{GameID: "AB12", Timestamp: 50})
	require.NoError(t, err)
	recvNoDoc(t, ch)

	head, ok := s.Latest("AB12")
	require.True(t, ok)
	assert.Equal(t, int64(100), head.Timestamp)
	assert.Len(t, s.Documents("AB12"), 2, "history is append-only")
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ch, unsub := collect(t, s, "AB12")
	assert.Equal(t, 1, s.Subscribers())

	unsub()
	unsub()
	assert.Equal(t, 0, s.Subscribers())

	_, err := s.Create(ctx, Document{GameID: "AB12", Timestamp: 1})
	require.NoError(t, err)
	recvNoDoc(t, ch)
}

func TestMemoryStore_FailWith(t *testing.T) {
	s := NewMemoryStore()
	s.FailWith = ErrPermissionDenied

	_, err := s.Create(context.Background(), Document{GameID: "AB12"})
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Empty(t, s.Documents("AB12"))
}

func TestMemoryStore_DocumentsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	doc := Document{GameID: "AB12", Players: []string{"Ana"}, Scores: map[string]string{"round0_player0": "1"}}
	_, err := s.Create(ctx, doc)
	require.NoError(t, err)

	doc.Players[0] = "Mallory"
	doc.Scores["round0_player0"] = "999"

	head, _ := s.Latest("AB12")
	assert.Equal(t, []string{"Ana"}, head.Players)
	assert.Equal(t, "1", head.Scores["round0_player0"])
}

func TestOpen_Memory(t *testing.T) {
	backend, err := Open(context.Background(), OpenOptions{Kind: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, backend.Store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, backend.Run(ctx))
	assert.NoError(t, backend.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), OpenOptions{Kind: "redis"})
	assert.Error(t, err)
}
