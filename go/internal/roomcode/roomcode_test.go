package roomcode

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_AlwaysValid(t *testing.T) {
	g := NewGenerator(rand.NewPCG(1, 2))
	for i := 0; i < 5000; i++ {
		code := g.Generate()
		if !Validate(code) {
			t.Fatalf("generated invalid code %q", code)
		}
	}
	assert.True(t, Validate(NewRandomGenerator().Generate()))
}

func TestGenerate_SeededIsReproducible(t *testing.T) {
	a := NewGenerator(rand.NewPCG(42, 7))
	b := NewGenerator(rand.NewPCG(42, 7))
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestGenerate_CoversAlphabet(t *testing.T) {
	g := NewGenerator(rand.NewPCG(3, 4))
	seen := make(map[byte]bool)
	for i := 0; i < 5000; i++ {
		code := g.Generate()
		seen[code[0]] = true
		seen[code[2]] = true
	}
	assert.Len(t, seen, len(letters)+len(digits))
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"ab12":     "AB12",
		"  Ab12\n": "AB12",
		"AB12":     "AB12",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"AB12", true},
		{"ZZ00", true},
		{"ab12", false},
		{"A112", false},
		{"AB1", false},
		{"AB123", false},
		{"12AB", false},
		{"AB1C", false},
		{" AB12", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Validate(tc.code), "code %q", tc.code)
	}
}
