package eventbus

import (
	"time"

	"github.com/rs/xid"
)

// EventType represents the type of event
type EventType string

// Event types
const (
	EventConnOpened         EventType = "conn.opened"
	EventConnClosed         EventType = "conn.closed"
	EventMatchCreated       EventType = "match.created"
	EventMatchDestroyed     EventType = "match.destroyed"
	EventPlayerAdmitted     EventType = "player.admitted"
	EventPlayerLeft         EventType = "player.left"
	EventMaintenanceToggled EventType = "server.maintenance"
)

// Event represents a system event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Data      any               `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ConnData is carried by conn.opened and conn.closed.
type ConnData struct {
	ConnID     string `json:"connID"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
}

// MatchData is carried by match.created and match.destroyed.
type MatchData struct {
	MatchID string `json:"matchID"`
	RuleSet string `json:"ruleSet"`
	Random  bool   `json:"random"`
	Public  bool   `json:"public"`
}

// PlayerData is carried by player.admitted and player.left.
type PlayerData struct {
	MatchID  string `json:"matchID"`
	PlayerID string `json:"playerID"`
	Color    string `json:"color"`
	Resumed  bool   `json:"resumed,omitempty"`
}

// MaintenanceData is carried by server.maintenance.
type MaintenanceData struct {
	Enabled bool `json:"enabled"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, source string, data any) *Event {
	return &Event{
		ID:        xid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
