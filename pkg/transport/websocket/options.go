package websocket

import (
	"net/http"

	"github.com/cyvasse-online/server/internal/eventbus"
	"github.com/cyvasse-online/server/internal/logging"
)

// ServerOptions represents websocket server options
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Acceptor        Acceptor
	Logger          *logging.Logger
	EventBus        eventbus.Bus
	Client          ClientOptions
}

// ServerOption is a function that configures ServerOptions
type ServerOption func(*ServerOptions)

// WithAcceptor sets the receiver of connection lifecycle calls
func WithAcceptor(acceptor Acceptor) ServerOption {
	return func(o *ServerOptions) {
		o.Acceptor = acceptor
	}
}

// WithLogger sets the logger for the server
func WithLogger(logger *logging.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// WithEventBus sets the event bus for the server
func WithEventBus(eventBus eventbus.Bus) ServerOption {
	return func(o *ServerOptions) {
		o.EventBus = eventBus
	}
}

// WithCheckOrigin sets the check origin function
func WithCheckOrigin(checkOrigin func(r *http.Request) bool) ServerOption {
	return func(o *ServerOptions) {
		o.CheckOrigin = checkOrigin
	}
}

// WithClientOptions sets the options every accepted client is created with
func WithClientOptions(client ClientOptions) ServerOption {
	return func(o *ServerOptions) {
		o.Client = client
		o.ReadBufferSize = client.ReadBufferSize
		o.WriteBufferSize = client.WriteBufferSize
	}
}
