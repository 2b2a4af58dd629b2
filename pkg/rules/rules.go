// Package rules holds the rule-specific game objects embedded in a match.
// The match engine treats them as opaque: it forwards game messages to
// Observe and asks for a Status snapshot when a player joins or resumes.
// No move is validated here.
package rules

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
)

// Game message actions understood by the tracker.
const (
	ActionSetOpeningArray = "setOpeningArray"
	ActionMove            = "move"
	ActionMoveCapture     = "moveCapture"
	ActionPromote         = "promote"
)

// Game is the rule-specific state of one match. Implementations guard
// themselves; the engine calls them without holding any registry lock.
type Game interface {
	RuleSet() domain.RuleSet
	// Observe applies a game message sent by the player of color c.
	Observe(c domain.Color, action string, param json.RawMessage) error
	// Status returns a snapshot for a player joining mid-game.
	Status() protocol.GameStatus
}

// New constructs the game object for a rule set.
func New(rs domain.RuleSet) (Game, error) {
	switch rs {
	case domain.RuleSetMikeLePage:
		return newBoard(rs), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRuleSet, rs)
	}
}

// pieces maps a piece type to the coordinates it occupies.
type pieces map[string][]string

// board tracks setup completion and piece positions per side.
type board struct {
	mu        sync.Mutex
	ruleSet   domain.RuleSet
	setupDone [2]bool
	positions [2]pieces
}

func newBoard(rs domain.RuleSet) *board {
	return &board{
		ruleSet:   rs,
		positions: [2]pieces{{}, {}},
	}
}

func (b *board) RuleSet() domain.RuleSet { return b.ruleSet }

func (b *board) Observe(c domain.Color, action string, param json.RawMessage) error {
	if c != domain.White && c != domain.Black {
		return domain.ErrUnknownColor
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch action {
	case ActionSetOpeningArray:
		var p pieces
		if err := json.Unmarshal(param, &p); err != nil {
			return fmt.Errorf("decode opening array: %w", err)
		}
		b.positions[c] = p
		b.setupDone[c] = true
	case ActionMove, ActionMoveCapture:
		var p struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if err := json.Unmarshal(param, &p); err != nil {
			return fmt.Errorf("decode %s: %w", action, err)
		}
		if action == ActionMoveCapture {
			b.positions[c.Opposite()].remove(p.To)
		}
		b.positions[c].move(p.From, p.To)
	case ActionPromote:
		var p struct {
			Coord  string `json:"coord"`
			Origin string `json:"origType"`
			Target string `json:"newType"`
		}
		if err := json.Unmarshal(param, &p); err != nil {
			return fmt.Errorf("decode promote: %w", err)
		}
		b.positions[c].remove(p.Coord)
		b.positions[c][p.Target] = append(b.positions[c][p.Target], p.Coord)
	}

	return nil
}

func (b *board) Status() protocol.GameStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	inSetup := !(b.setupDone[domain.White] && b.setupDone[domain.Black])
	status := protocol.GameStatus{Setup: inSetup}
	if inSetup {
		return status
	}

	status.PiecePositions = map[string]map[string][]string{
		domain.White.String(): b.positions[domain.White].clone(),
		domain.Black.String(): b.positions[domain.Black].clone(),
	}
	return status
}

func (p pieces) move(from, to string) {
	for typ, coords := range p {
		for i, coord := range coords {
			if coord == from {
				p[typ][i] = to
				return
			}
		}
	}
}

func (p pieces) remove(at string) {
	for typ, coords := range p {
		for i, coord := range coords {
			if coord == at {
				p[typ] = append(coords[:i:i], coords[i+1:]...)
				if len(p[typ]) == 0 {
					delete(p, typ)
				}
				return
			}
		}
	}
}

func (p pieces) clone() map[string][]string {
	out := make(map[string][]string, len(p))
	for typ, coords := range p {
		out[typ] = append([]string(nil), coords...)
	}
	return out
}
