// Package idgen produces the short opaque identifiers players type and share:
// four characters for a match, eight for a player.
package idgen

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

const (
	// MatchIDLength is the length of a match identifier (24 bits of entropy).
	MatchIDLength = 4
	// PlayerIDLength is the length of a player identifier (48 bits of entropy).
	PlayerIDLength = 8
)

// Charset is the URL-safe base64 alphabet.
var Charset = slices.Concat(lo.AlphanumericCharset, []rune("-_"))

// RandomFunc returns a random string of the given length.
type RandomFunc func(length int) string

// Generator creates match and player identifiers. Uniqueness is not
// guaranteed; callers retry against their own registry on collision.
type Generator struct {
	random RandomFunc
}

// New returns a generator backed by lo.RandomString over Charset.
func New() *Generator {
	return NewWithRandom(func(length int) string {
		return lo.RandomString(length, Charset)
	})
}

// NewWithRandom returns a generator using fn as its source.
func NewWithRandom(fn RandomFunc) *Generator {
	return &Generator{random: fn}
}

// MatchID returns a new candidate match identifier.
func (g *Generator) MatchID() string {
	return g.random(MatchIDLength)
}

// PlayerID returns a new candidate player identifier.
func (g *Generator) PlayerID() string {
	return g.random(PlayerIDLength)
}

// Sequence returns a RandomFunc that replays values in order and then
// falls back to next. Tests use it to force collisions.
func Sequence(next RandomFunc, values ...string) RandomFunc {
	var (
		mu sync.Mutex
		i  int
	)
	return func(length int) string {
		mu.Lock()
		defer mu.Unlock()
		if i < len(values) {
			v := values[i]
			i++
			return v
		}
		return next(length)
	}
}
