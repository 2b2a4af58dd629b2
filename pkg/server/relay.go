package server

import (
	"context"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
)

// Relayed messages get no reply on success. The sender never receives its
// own message back.

func (d *Dispatcher) handleChat(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(*protocol.Chat)

	s, _, peers, ok := d.relayTargets(conn)
	if !ok {
		return nil
	}

	data, err := m.Annotated(s.Username)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "ENCODE", "failed to annotate chat message")
	}
	d.sendPeersRaw(peers, data)
	return nil
}

func (d *Dispatcher) handleGame(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.Game)

	s, view, peers, ok := d.relayTargets(conn)
	if !ok {
		return nil
	}

	if err := view.Game.Observe(s.Color, m.Action, m.Param); err != nil {
		d.logger.Warn("game state not updated",
			"conn_id", conn,
			"match_id", view.ID,
			"action", m.Action,
			"error", err,
		)
	}

	d.sendPeersRaw(peers, m.Raw)
	return nil
}

func (d *Dispatcher) handleRelay(_ context.Context, conn domain.ConnID, msg protocol.Inbound) error {
	m := msg.(protocol.Relay)

	_, _, peers, ok := d.relayTargets(conn)
	if !ok {
		return nil
	}

	d.sendPeersRaw(peers, m.Raw)
	return nil
}

// relayTargets resolves the caller's match. An unattached caller is told
// so with a commError and ok is false.
func (d *Dispatcher) relayTargets(conn domain.ConnID) (Session, MatchView, []Peer, bool) {
	s, view, peers, err := d.registry.Peers(conn)
	if err != nil {
		d.send(conn, protocol.CommError(protocol.TextNotAttached))
		return Session{}, MatchView{}, nil, false
	}
	return s, view, peers, true
}
