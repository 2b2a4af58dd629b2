package domain

import (
	"context"

	"github.com/rs/xid"
)

// ConnID identifies one live transport connection. It is a plain comparable
// key; holding one does not keep the connection alive.
type ConnID string

// NewConnID returns a fresh, globally unique connection identifier.
func NewConnID() ConnID {
	return ConnID(xid.New().String())
}

// Conn is the send side of a transport connection as seen by the match
// engine. The transport owns the connection; the engine only references it.
type Conn interface {
	// ID returns the unique identifier of the connection
	ID() ConnID

	// Send queues a message for delivery. It must not block on network I/O.
	Send(ctx context.Context, message []byte) error

	// Close closes the connection
	Close() error

	// Context is cancelled once the connection is closed
	Context() context.Context
}

// MessageHandler is a function that handles incoming messages
type MessageHandler func(message []byte) error
