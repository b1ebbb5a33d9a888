// Package roomcode generates and checks the short codes people type to join a
// room. Codes are two uppercase letters followed by two digits, e.g. "AB12".
// Nothing checks a new code against codes already in use.
package roomcode

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
)

// Length is the number of characters in a room code.
const Length = 4

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
)

var pattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}$`)

// Generator produces room codes from a random source. The zero value is not
// usable; construct with NewGenerator.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a Generator backed by src. Pass a seeded source in
// tests for reproducible codes.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// NewRandomGenerator returns a Generator seeded from the runtime's entropy.
func NewRandomGenerator() *Generator {
	return NewGenerator(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Generate returns a new code.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(Length)
	b.WriteByte(letters[g.rnd.IntN(len(letters))])
	b.WriteByte(letters[g.rnd.IntN(len(letters))])
	b.WriteByte(digits[g.rnd.IntN(len(digits))])
	b.WriteByte(digits[g.rnd.IntN(len(digits))])
	return b.String()
}

// Normalize trims and upper-cases a user-typed code. It does not validate.
func Normalize(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// Validate reports whether code has the letter-letter-digit-digit shape.
// Lowercase input is rejected; call Normalize first.
func Validate(code string) bool {
	return pattern.MatchString(code)
}
