package ledger

import "errors"

// ErrEmptyHistory is returned when an edit targets the last round of a game
// that has no rounds yet.
var ErrEmptyHistory = errors.New("no rounds to edit")

// ErrInvalidMaxScore is returned for a max score that is not positive.
var ErrInvalidMaxScore = errors.New("max score must be a positive number")

// ErrCellOutOfRange is returned when a cell edit addresses a missing round or player.
var ErrCellOutOfRange = errors.New("cell out of range")
