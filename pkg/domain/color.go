package domain

import (
	"fmt"
	"strings"
)

// Color is one of the two sides of a match.
type Color int

const (
	White Color = iota
	Black
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// String returns the wire representation of the color.
func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("color(%d)", int(c))
	}
}

// PrettyName is the display name given to a player that never set a username.
func (c Color) PrettyName() string {
	switch c {
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return "Unknown"
	}
}

// ParseColor parses the wire representation of a color.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(s) {
	case "white":
		return White, nil
	case "black":
		return Black, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
}
