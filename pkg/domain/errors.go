package domain

import (
	"errors"
)

// Common domain errors
var (
	// ErrConnectionClosed is returned when trying to use a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when a connection cannot keep up with its outbound traffic
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrQueueClosed is returned when enqueueing into a stopped job queue
	ErrQueueClosed = errors.New("job queue closed")

	// ErrEngineStopped is returned when using an engine that is not running
	ErrEngineStopped = errors.New("engine stopped")

	// ErrUnknownColor is returned when parsing an unknown player color
	ErrUnknownColor = errors.New("unknown color")

	// ErrUnknownRuleSet is returned when parsing an unknown rule set
	ErrUnknownRuleSet = errors.New("unknown rule set")
)
