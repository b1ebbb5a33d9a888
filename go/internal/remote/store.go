// Package remote defines the shared document store that rooms synchronize
// through, and its implementations. The store is append-only: every round
// submission creates a new document, and readers only ever look at the newest
// document of a room.
package remote

import (
	"context"
	"errors"
)

// Error kinds a Store reports. Implementations wrap these so callers can
// classify with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("store unavailable")
)

// CreatedAtLayout formats Document.CreatedAt as an ISO-8601 UTC timestamp with
// millisecond precision.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Document is the wire form of one snapshot as stored remotely.
type Document struct {
	ID           string            `json:"-"`
	GameID       string            `json:"gameId"`
	Players      []string          `json:"players"`
	PlayerIDs    []string          `json:"playerIds"`
	Scores       map[string]string `json:"scores"`   // "round{r}_player{p}", zero-based
	MaxScore     int               `json:"maxScore"` // 0 = unset
	TotalRounds  int               `json:"totalRounds"`
	PlayerTotals map[string]int    `json:"playerTotals"`
	CreatedAt    string            `json:"createdAt"` // RFC 3339
	Timestamp    int64             `json:"timestamp"` // epoch millis
}

// DocumentRef identifies a created document.
type DocumentRef struct {
	ID string
}

// Query selects the documents of one room, newest timestamp first.
type Query struct {
	GameID string
	Limit  int
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is the remote document store.
type Store interface {
	// Create writes doc as a new document. It never updates an existing one.
	Create(ctx context.Context, doc Document) (DocumentRef, error)

	// Subscribe delivers the query's newest document present at subscribe time,
	// if any, and then every document that becomes the newest. onChange must
	// not block for long; it runs on the store's delivery goroutine.
	Subscribe(ctx context.Context, q Query, onChange func(Document)) (Unsubscribe, error)
}

// newer reports whether candidate should replace current as a query's head.
// Equal timestamps replace so an identical re-delivery is still observed.
func newer(candidate, current Document, haveCurrent bool) bool {
	return !haveCurrent || candidate.Timestamp >= current.Timestamp
}
