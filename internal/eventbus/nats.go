package eventbus

import (
	"encoding/json"
	"time"

	"github.com/cyvasse-online/server/internal/logging"
	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by the forwarder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes every bus event on NATS as JSON under
// "<prefix>.<event type>", e.g. "cyvasse.match.created".
type NATSForwarder struct {
	pub    Publisher
	prefix string
	logger *logging.Logger
	subID  string
	bus    Bus
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url string, logger *logging.Logger) (*nats.Conn, error) {
	log := logger.Component("nats")
	return nats.Connect(url,
		nats.Name("cyvasse-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
}

// NewNATSForwarder creates a forwarder publishing through pub.
func NewNATSForwarder(pub Publisher, prefix string, logger *logging.Logger) *NATSForwarder {
	return &NATSForwarder{
		pub:    pub,
		prefix: prefix,
		logger: logger.Component("nats-forwarder"),
	}
}

// Attach subscribes the forwarder to every event on bus.
func (f *NATSForwarder) Attach(bus Bus) {
	f.bus = bus
	f.subID = bus.SubscribeAll(f.forward)
}

// Detach removes the forwarder's subscription.
func (f *NATSForwarder) Detach() {
	if f.bus != nil {
		f.bus.Unsubscribe(f.subID)
		f.bus = nil
	}
}

// Subject returns the NATS subject used for an event type.
func (f *NATSForwarder) Subject(t EventType) string {
	return f.prefix + "." + string(t)
}

func (f *NATSForwarder) forward(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("failed to marshal event", "event_type", event.Type, "error", err)
		return
	}

	if err := f.pub.Publish(f.Subject(event.Type), data); err != nil {
		f.logger.Warn("failed to publish event", "event_type", event.Type, "error", err)
	}
}
