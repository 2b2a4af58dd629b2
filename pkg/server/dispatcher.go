package server

import (
	"context"
	"time"

	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/internal/logging"
	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"go.uber.org/atomic"
)

const eventSource = "match-engine"

// Dispatcher turns decoded client messages into registry mutations and
// outbound messages. It keeps no per-connection state of its own.
type Dispatcher struct {
	registry    *Registry
	lists       *Lists
	codec       protocol.Codec
	handlers    *protocol.DefaultHandlerRegistry
	bus         eventbus.Bus
	logger      *logging.Logger
	maintenance *atomic.Bool
	sendTimeout time.Duration
	sent        *atomic.Int64
}

// NewDispatcher wires a dispatcher to registry. bus may be nil.
func NewDispatcher(registry *Registry, bus eventbus.Bus, logger *logging.Logger) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		codec:       protocol.NewJSONCodec(),
		handlers:    protocol.NewHandlerRegistry(),
		bus:         bus,
		logger:      logger.Component("dispatcher"),
		maintenance: atomic.NewBool(false),
		sendTimeout: 5 * time.Second,
		sent:        atomic.NewInt64(0),
	}
	d.lists = NewLists(d.notify)

	d.handlers.Register(protocol.KindInitComm, protocol.HandlerFunc(d.handleInitComm))
	d.handlers.Register(protocol.KindCreateGame, protocol.HandlerFunc(d.handleCreateGame))
	d.handlers.Register(protocol.KindJoinGame, protocol.HandlerFunc(d.handleJoinGame))
	d.handlers.Register(protocol.KindResumeGame, protocol.HandlerFunc(d.handleResumeGame))
	d.handlers.Register(protocol.KindSetUsername, protocol.HandlerFunc(d.handleSetUsername))
	d.handlers.Register(protocol.KindSubscribe, protocol.HandlerFunc(d.handleSubscribe))
	d.handlers.Register(protocol.KindUnsubscribe, protocol.HandlerFunc(d.handleUnsubscribe))
	d.handlers.Register(protocol.KindChat, protocol.HandlerFunc(d.handleChat))
	d.handlers.Register(protocol.KindGame, protocol.HandlerFunc(d.handleGame))
	d.handlers.Register(protocol.KindRelay, protocol.HandlerFunc(d.handleRelay))

	return d
}

// Lists exposes the discovery lists.
func (d *Dispatcher) Lists() *Lists { return d.lists }

// Dispatch handles one job. Undecodable payloads are answered with a
// commError notification and are not an error for the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	msg, err := d.codec.Decode(job.Payload)
	if err != nil {
		logging.FromContext(ctx).Debug("rejecting malformed message", "error", err)
		d.send(job.Conn, protocol.CommError(protocol.CommErrorText(err)))
		return nil
	}

	return d.handlers.Handle(ctx, job.Conn, msg)
}

// SetMaintenance switches maintenance mode and reports the previous value.
func (d *Dispatcher) SetMaintenance(on bool) bool {
	old := d.maintenance.Swap(on)
	if old != on {
		d.logger.Info("maintenance mode changed", "enabled", on)
		d.publish(eventbus.EventMaintenanceToggled, eventbus.MaintenanceData{Enabled: on})
	}
	return old
}

// Maintenance reports whether new matches are currently refused.
func (d *Dispatcher) Maintenance() bool { return d.maintenance.Load() }

// Sent returns the number of messages handed to connections.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// Disconnect runs the cleanup for a closed connection. Calling it again for
// the same connection does nothing.
func (d *Dispatcher) Disconnect(conn domain.ConnID) {
	d.registry.Disconnect(conn)
	d.lists.UnsubscribeAll(conn)

	det, ok := d.registry.RemoveSession(conn)
	if !ok {
		return
	}

	d.logger.Info("player left",
		"conn_id", conn,
		"match_id", det.Match.ID,
		"player_id", det.Session.PlayerID,
		"remaining", len(det.Match.Sessions),
	)
	d.publish(eventbus.EventPlayerLeft, eventbus.PlayerData{
		MatchID:  det.Match.ID,
		PlayerID: det.Session.PlayerID,
		Color:    det.Session.Color.String(),
	})

	if det.Empty {
		if d.registry.DestroyMatch(det.Match.ID) {
			d.logger.Info("match destroyed", "match_id", det.Match.ID)
			d.publish(eventbus.EventMatchDestroyed, matchData(det.Match))
		}
	} else {
		d.sendPeers(det.Peers, protocol.UserLeft(det.Session.Username))
	}

	d.syncListings(det.Match.ID)
}

// notify encodes env once and sends it to every live connection in to.
func (d *Dispatcher) notify(to []domain.ConnID, env *protocol.Envelope) {
	data, err := d.codec.Encode(env)
	if err != nil {
		d.logger.Error("failed to encode message", "error", err)
		return
	}
	for _, id := range to {
		if c, ok := d.registry.Conn(id); ok {
			d.deliver(c, data)
		}
	}
}

// send delivers env to one connection, if it is still open.
func (d *Dispatcher) send(to domain.ConnID, env *protocol.Envelope) {
	d.notify([]domain.ConnID{to}, env)
}

func (d *Dispatcher) sendPeers(peers []Peer, env *protocol.Envelope) {
	data, err := d.codec.Encode(env)
	if err != nil {
		d.logger.Error("failed to encode message", "error", err)
		return
	}
	d.sendPeersRaw(peers, data)
}

func (d *Dispatcher) sendPeersRaw(peers []Peer, data []byte) {
	for _, p := range peers {
		d.deliver(p.Conn, data)
	}
}

// deliver never blocks on the network. Failures on closed connections are
// ignored; a connection that cannot keep up is closed, and the transport
// then reports the disconnect.
func (d *Dispatcher) deliver(c domain.Conn, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	err := c.Send(ctx, data)
	switch {
	case err == nil:
		d.sent.Inc()
	case errors.Is(err, domain.ErrSendBufferFull):
		d.logger.Warn("send buffer full, closing connection", "conn_id", c.ID())
		_ = c.Close()
	default:
		d.logger.Debug("dropping message for closed connection", "conn_id", c.ID(), "error", err)
	}
}

func (d *Dispatcher) publish(t eventbus.EventType, data any) {
	if d.bus == nil {
		return
	}
	d.bus.PublishAsync(eventbus.NewEvent(t, eventSource, data))
}

func matchData(m MatchView) eventbus.MatchData {
	return eventbus.MatchData{
		MatchID: m.ID,
		RuleSet: string(m.RuleSet),
		Random:  m.Random,
		Public:  m.Public,
	}
}
