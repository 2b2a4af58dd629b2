package client

import (
	"context"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
)

// GameOptions describes a match to create.
type GameOptions struct {
	RuleSet domain.RuleSet
	Color   domain.Color
	Random  bool
	Public  bool
}

// CreatedGame is the reply to a successful createGame.
type CreatedGame struct {
	MatchID  string `json:"matchID"`
	PlayerID string `json:"playerID"`
}

// JoinedGame is the reply to a successful joinGame or resumeGame.
type JoinedGame struct {
	MatchID    string              `json:"matchID"`
	PlayerID   string              `json:"playerID"`
	Color      string              `json:"color"`
	RuleSet    string              `json:"ruleSet"`
	GameStatus protocol.GameStatus `json:"gameStatus"`
}

// CreateGame opens a new match seated as opts.Color.
func (c *Client) CreateGame(ctx context.Context, opts GameOptions) (CreatedGame, error) {
	if opts.RuleSet == "" {
		opts.RuleSet = domain.RuleSetMikeLePage
	}

	var out CreatedGame
	err := c.call(ctx, protocol.ActionCreateGame, map[string]any{
		"ruleSet": opts.RuleSet,
		"color":   opts.Color.String(),
		"random":  opts.Random,
		"public":  opts.Public,
	}, &out)
	return out, err
}

// JoinGame takes the free seat of matchID.
func (c *Client) JoinGame(ctx context.Context, matchID string) (JoinedGame, error) {
	var out JoinedGame
	err := c.call(ctx, protocol.ActionJoinGame, map[string]any{"matchID": matchID}, &out)
	return out, err
}

// ResumeGame reclaims the seat last held by playerID.
func (c *Client) ResumeGame(ctx context.Context, playerID string) (JoinedGame, error) {
	var out JoinedGame
	err := c.call(ctx, protocol.ActionResumeGame, map[string]any{"playerID": playerID}, &out)
	return out, err
}

// SetUsername changes the display name shown to the opponent.
func (c *Client) SetUsername(ctx context.Context, name string) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	err := c.call(ctx, protocol.ActionSetUsername, map[string]any{"username": name}, &out)
	return out.Username, err
}

// Subscribe asks for updates of the named lists. The accepted names are
// returned even when some were rejected.
func (c *Client) Subscribe(ctx context.Context, lists ...protocol.ListName) ([]protocol.ListName, error) {
	return c.lists(ctx, protocol.ActionSubscribe, lists)
}

// Unsubscribe stops updates of the named lists.
func (c *Client) Unsubscribe(ctx context.Context, lists ...protocol.ListName) ([]protocol.ListName, error) {
	return c.lists(ctx, protocol.ActionUnsubscribe, lists)
}

func (c *Client) lists(ctx context.Context, action protocol.Action, lists []protocol.ListName) ([]protocol.ListName, error) {
	if lists == nil {
		lists = []protocol.ListName{}
	}

	reply, err := c.Request(ctx, action, map[string]any{"lists": lists})
	if err != nil {
		return nil, err
	}

	var out struct {
		Lists []protocol.ListName `json:"lists"`
	}
	if err := reply.Decode(&out); err != nil {
		return nil, err
	}
	return out.Lists, reply.Err()
}

// call sends a request and decodes a successful reply into out.
func (c *Client) call(ctx context.Context, action protocol.Action, param any, out any) error {
	reply, err := c.Request(ctx, action, param)
	if err != nil {
		return err
	}
	if err := reply.Err(); err != nil {
		return err
	}
	return reply.Decode(out)
}
