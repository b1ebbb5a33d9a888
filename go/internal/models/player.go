package models

import "github.com/google/uuid"

// Player is a roster entry. IDs are opaque and only travel with snapshots;
// rounds reference players by index.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewPlayer creates a player with a fresh random ID.
func NewPlayer(name string) Player {
	return Player{ID: uuid.New().String(), Name: name}
}

// PlayerNames returns the roster names in order.
func PlayerNames(players []Player) []string {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	return names
}

// PlayerIDs returns the roster IDs in order.
func PlayerIDs(players []Player) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}
