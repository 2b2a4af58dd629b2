package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
	"github.com/cyvasse-online/server/pkg/rules"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"github.com/samber/lo"
)

// openGameTitle is the title shown for a match waiting for a random opponent.
const openGameTitle = "A game"

func (d *Dispatcher) handleInitComm(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.InitComm)

	if m.Major != protocol.MajorVersion {
		d.logger.Info("client speaks a different major protocol version",
			"conn_id", conn,
			"client_major", m.Major,
		)
		d.send(conn, protocol.RequestErr(m.MsgID(), protocol.CodeDifferingMajorProtVersion,
			fmt.Sprintf("Expected major protocol version %d", protocol.MajorVersion), nil))
	}

	d.send(conn, protocol.RequestSuccess(m.MsgID(), nil))
	return nil
}

func (d *Dispatcher) handleCreateGame(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.CreateGame)

	if d.Maintenance() {
		d.replyErr(conn, m.MsgID(), protocol.ErrMaintenance)
		return nil
	}

	game, err := rules.New(m.RuleSet)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "RULESET", "failed to construct game")
	}

	adm, err := d.registry.Host(conn, HostOptions{
		RuleSet: m.RuleSet,
		Game:    game,
		Color:   m.Color,
		Random:  m.Random,
		Public:  m.Public,
	})
	if err != nil {
		return d.admissionFailed(conn, m.MsgID(), err)
	}

	d.logger.Info("match created",
		"conn_id", conn,
		"match_id", adm.Match.ID,
		"rule_set", adm.Match.RuleSet,
		"color", adm.Session.Color,
		"random", m.Random,
		"public", m.Public,
	)
	d.publish(eventbus.EventMatchCreated, matchData(adm.Match))
	d.publishAdmitted(adm, false)

	d.send(conn, protocol.RequestSuccess(m.MsgID(), map[string]any{
		"matchID":  adm.Match.ID,
		"playerID": adm.Session.PlayerID,
	}))

	d.syncListings(adm.Match.ID)
	return nil
}

func (d *Dispatcher) handleJoinGame(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.JoinGame)

	adm, err := d.registry.Join(conn, m.MatchID)
	if err != nil {
		return d.admissionFailed(conn, m.MsgID(), err)
	}

	d.logger.Info("player joined",
		"conn_id", conn,
		"match_id", adm.Match.ID,
		"color", adm.Session.Color,
	)
	d.publishAdmitted(adm, false)
	d.admitted(conn, m.MsgID(), adm)
	return nil
}

func (d *Dispatcher) handleResumeGame(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.ResumeGame)

	adm, err := d.registry.Resume(conn, m.PlayerID)
	if err != nil {
		return d.admissionFailed(conn, m.MsgID(), err)
	}

	d.logger.Info("player resumed",
		"conn_id", conn,
		"match_id", adm.Match.ID,
		"color", adm.Session.Color,
	)
	d.publishAdmitted(adm, true)
	d.admitted(conn, m.MsgID(), adm)
	return nil
}

// admitted finishes a join or resume: reply to the newcomer, tell the
// player already there, and refresh the discovery lists.
func (d *Dispatcher) admitted(conn domain.ConnID, msgID json.RawMessage, adm Admission) {
	d.send(conn, protocol.RequestSuccess(msgID, map[string]any{
		"matchID":    adm.Match.ID,
		"color":      adm.Session.Color.String(),
		"playerID":   adm.Session.PlayerID,
		"ruleSet":    adm.Match.RuleSet,
		"gameStatus": adm.Match.Game.Status(),
	}))

	d.sendPeers(adm.Peers, protocol.UserJoined(adm.Session.Username))
	d.syncListings(adm.Match.ID)
}

// syncListings brings every discovery list in line with the current state
// of matchID. A random match is open until it first fills; a public match
// is running while both players are attached. Anything that changes a
// match calls this afterwards.
func (d *Dispatcher) syncListings(matchID string) {
	d.lists.Sync(protocol.ListOpenRandomGames, matchID, func() (protocol.ListEntry, bool) {
		m, ok := d.registry.Match(matchID)
		if !ok || !m.Random || m.Filled || len(m.Sessions) != 1 {
			return protocol.ListEntry{}, false
		}
		return protocol.ListEntry{
			Title: openGameTitle,
			Color: m.Sessions[0].Color.Opposite().String(),
		}, true
	})

	d.lists.Sync(protocol.ListRunningPublicGames, matchID, func() (protocol.ListEntry, bool) {
		m, ok := d.registry.Match(matchID)
		if !ok || !m.Public || !m.Full() {
			return protocol.ListEntry{}, false
		}
		return protocol.ListEntry{Title: runningGameTitle(m)}, true
	})
}

func runningGameTitle(m MatchView) string {
	names := make(map[domain.Color]string, MaxPlayers)
	for _, s := range m.Sessions {
		names[s.Color] = s.Username
	}
	return names[domain.White] + " vs " + names[domain.Black]
}

func (d *Dispatcher) handleSetUsername(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.SetUsername)

	s, err := d.registry.SetUsername(conn, m.Username)
	if err != nil {
		d.replyErr(conn, m.MsgID(), err)
		return nil
	}

	d.send(conn, protocol.RequestSuccess(m.MsgID(), map[string]any{"username": s.Username}))

	d.syncListings(s.MatchID)
	return nil
}

func (d *Dispatcher) handleSubscribe(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.Subscribe)

	valid, unknown := partitionLists(m.Lists)
	d.replyLists(conn, m.MsgID(), valid, unknown)

	for _, name := range valid {
		d.lists.Subscribe(conn, name)
	}

	// The connection may have closed while subscribing, after the
	// disconnect cleanup already ran.
	if !d.registry.IsLive(conn) {
		d.lists.UnsubscribeAll(conn)
	}
	return nil
}

func (d *Dispatcher) handleUnsubscribe(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.Unsubscribe)

	valid, unknown := partitionLists(m.Lists)
	for _, name := range valid {
		d.lists.Unsubscribe(conn, name)
	}

	d.replyLists(conn, m.MsgID(), valid, unknown)
	return nil
}

// replyLists answers a (un)subscribe request. Valid names are always
// processed; unknown ones turn the reply into a listDoesNotExist error
// that names them, while "lists" still reports what was accepted.
func (d *Dispatcher) replyLists(conn domain.ConnID, msgID json.RawMessage, valid, unknown []protocol.ListName) {
	accepted := map[string]any{"lists": valid}

	if len(unknown) == 0 {
		d.send(conn, protocol.RequestSuccess(msgID, accepted))
		return
	}

	names := lo.Map(unknown, func(n protocol.ListName, _ int) string { return string(n) })
	d.send(conn, protocol.RequestErr(msgID, protocol.CodeListDoesNotExist, strings.Join(names, ", "), accepted))
}

func partitionLists(names []protocol.ListName) (valid, unknown []protocol.ListName) {
	valid, unknown = lo.FilterReject(lo.Uniq(names), func(n protocol.ListName, _ int) bool {
		return n.Valid()
	})
	if valid == nil {
		valid = []protocol.ListName{}
	}
	return valid, unknown
}

// admissionFailed replies with the error code for a refused create, join
// or resume. A connection that closed meanwhile gets nothing.
func (d *Dispatcher) admissionFailed(conn domain.ConnID, msgID json.RawMessage, err error) error {
	if errors.Is(err, domain.ErrConnectionClosed) {
		return nil
	}
	if _, ok := errors.As(err); !ok {
		return err
	}
	d.replyErr(conn, msgID, err)
	return nil
}

func (d *Dispatcher) replyErr(conn domain.ConnID, msgID json.RawMessage, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.Wrap(err, errors.ErrorTypeInternal, "internal", "request failed")
	}
	d.logger.Debug("request refused", "conn_id", conn, "error_code", e.Code, "details", e.Details)
	d.send(conn, protocol.RequestErr(msgID, e.Code, e.Details, nil))
}

func (d *Dispatcher) publishAdmitted(adm Admission, resumed bool) {
	d.publish(eventbus.EventPlayerAdmitted, eventbus.PlayerData{
		MatchID:  adm.Match.ID,
		PlayerID: adm.Session.PlayerID,
		Color:    adm.Session.Color.String(),
		Resumed:  resumed,
	})
}
