package remote

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It keeps every document and pushes to
// subscribers from one goroutine per subscription, so a slow listener never
// blocks Create.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]Document // by game id, insertion order
	subs map[*subscriber]struct{}

	// FailWith, when set, is returned by Create instead of storing.
	FailWith error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string][]Document),
		subs: make(map[*subscriber]struct{}),
	}
}

func (m *MemoryStore) Create(ctx context.Context, doc Document) (DocumentRef, error) {
	if err := ctx.Err(); err != nil {
		return DocumentRef{}, fmt.Errorf("create document: %w", err)
	}

	m.mu.Lock()
	if m.FailWith != nil {
		err := m.FailWith
		m.mu.Unlock()
		return DocumentRef{}, err
	}
	doc.ID = uuid.New().String()
	doc = cloneDocument(doc)
	head, haveHead := latest(m.docs[doc.GameID])
	m.docs[doc.GameID] = append(m.docs[doc.GameID], doc)

	var targets []*subscriber
	if newer(doc, head, haveHead) {
		for s := range m.subs {
			if s.gameID == doc.GameID {
				targets = append(targets, s)
			}
		}
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.push(cloneDocument(doc))
	}
	return DocumentRef{ID: doc.ID}, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, q Query, onChange func(Document)) (Unsubscribe, error) {
	if q.GameID == "" {
		return nil, fmt.Errorf("subscribe: empty game id")
	}
	s := newSubscriber(q.GameID, onChange)

	m.mu.Lock()
	head, ok := latest(m.docs[q.GameID])
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	go s.run()
	if ok {
		s.push(cloneDocument(head))
	}

	return func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
		s.stop()
	}, nil
}

// Documents returns every stored document for gameID in insertion order.
func (m *MemoryStore) Documents(gameID string) []Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, len(m.docs[gameID]))
	for i, d := range m.docs[gameID] {
		out[i] = cloneDocument(d)
	}
	return out
}

// Latest returns the newest document for gameID.
func (m *MemoryStore) Latest(gameID string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := latest(m.docs[gameID])
	return cloneDocument(d), ok
}

// Subscribers returns the number of open subscriptions.
func (m *MemoryStore) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

func latest(docs []Document) (Document, bool) {
	var head Document
	found := false
	for _, d := range docs {
		if newer(d, head, found) {
			head, found = d, true
		}
	}
	return head, found
}

func cloneDocument(d Document) Document {
	out := d
	out.Players = slices.Clone(d.Players)
	out.PlayerIDs = slices.Clone(d.PlayerIDs)
	if d.Scores != nil {
		out.Scores = make(map[string]string, len(d.Scores))
		for k, v := range d.Scores {
			out.Scores[k] = v
		}
	}
	if d.PlayerTotals != nil {
		out.PlayerTotals = make(map[string]int, len(d.PlayerTotals))
		for k, v := range d.PlayerTotals {
			out.PlayerTotals[k] = v
		}
	}
	return out
}
