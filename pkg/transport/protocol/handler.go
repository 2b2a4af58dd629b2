package protocol

import (
	"context"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
)

// Handler defines the interface for handling decoded client messages
type Handler interface {
	// Handle processes one message received on conn
	Handle(ctx context.Context, conn domain.ConnID, msg Inbound) error
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, conn domain.ConnID, msg Inbound) error

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, conn domain.ConnID, msg Inbound) error {
	return f(ctx, conn, msg)
}

// HandlerRegistry manages message handlers
type HandlerRegistry interface {
	// Register registers a handler for a message kind
	Register(kind Kind, handler Handler)

	// Get retrieves a handler for a message kind
	Get(kind Kind) (Handler, bool)

	// Handle routes a message to the appropriate handler
	Handle(ctx context.Context, conn domain.ConnID, msg Inbound) error
}

// DefaultHandlerRegistry is the default implementation of HandlerRegistry.
// Registration happens once at construction; lookups are read-only after that.
type DefaultHandlerRegistry struct {
	handlers map[Kind]Handler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *DefaultHandlerRegistry {
	return &DefaultHandlerRegistry{
		handlers: make(map[Kind]Handler),
	}
}

// Register implements HandlerRegistry
func (r *DefaultHandlerRegistry) Register(kind Kind, handler Handler) {
	r.handlers[kind] = handler
}

// Get implements HandlerRegistry
func (r *DefaultHandlerRegistry) Get(kind Kind) (Handler, bool) {
	handler, ok := r.handlers[kind]
	return handler, ok
}

// Handle implements HandlerRegistry
func (r *DefaultHandlerRegistry) Handle(ctx context.Context, conn domain.ConnID, msg Inbound) error {
	handler, ok := r.Get(msg.Kind())
	if !ok {
		return errors.New(errors.ErrorTypeInternal, "NO_HANDLER", "no handler found for message kind").
			WithDetails(string(msg.Kind()))
	}

	return handler.Handle(ctx, conn, msg)
}
