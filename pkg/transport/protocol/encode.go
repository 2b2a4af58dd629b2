package protocol

import (
	"encoding/json"
)

// Envelope is a server-to-client message.
type Envelope struct {
	MsgType          MsgType         `json:"msgType"`
	MsgID            json.RawMessage `json:"msgID,omitempty"`
	ReplyData        map[string]any  `json:"replyData,omitempty"`
	NotificationData map[string]any  `json:"notificationData,omitempty"`
}

// ListEntry is one row of a discovery list as sent to subscribers.
type ListEntry struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

// GameStatus is the snapshot handed to a player joining or resuming a match.
type GameStatus struct {
	Setup          bool                           `json:"setup"`
	PiecePositions map[string]map[string][]string `json:"piecePositions,omitempty"`
}

// RequestSuccess builds a successful reply. extra is merged into replyData.
func RequestSuccess(msgID json.RawMessage, extra map[string]any) *Envelope {
	data := map[string]any{"success": true}
	for k, v := range extra {
		data[k] = v
	}
	return &Envelope{
		MsgType:   MsgTypeServerReply,
		MsgID:     msgID,
		ReplyData: data,
	}
}

// RequestErr builds a failed reply carrying a stable error code.
func RequestErr(msgID json.RawMessage, code, details string, extra map[string]any) *Envelope {
	data := map[string]any{
		"success": false,
		"error":   code,
	}
	if details != "" {
		data["errorDetails"] = details
	}
	for k, v := range extra {
		data[k] = v
	}
	return &Envelope{
		MsgType:   MsgTypeServerReply,
		MsgID:     msgID,
		ReplyData: data,
	}
}

// CommError builds a commError notification.
func CommError(text string) *Envelope {
	return notification(NotificationCommError, map[string]any{"errMsg": text})
}

// UserJoined tells the other player that someone took the free seat.
func UserJoined(username string) *Envelope {
	return notification(NotificationUserJoined, map[string]any{
		"registered": false,
		"username":   username,
	})
}

// UserLeft tells the remaining player that its opponent disconnected.
func UserLeft(username string) *Envelope {
	return notification(NotificationUserLeft, map[string]any{
		"username": username,
	})
}

// ListUpdate carries the complete current content of one discovery list.
func ListUpdate(list ListName, games map[string]ListEntry) *Envelope {
	if games == nil {
		games = map[string]ListEntry{}
	}
	return notification(NotificationListUpdate, map[string]any{
		"list":  list,
		"games": games,
	})
}

func notification(t NotificationType, fields map[string]any) *Envelope {
	data := map[string]any{"type": t}
	for k, v := range fields {
		data[k] = v
	}
	return &Envelope{
		MsgType:          MsgTypeNotification,
		NotificationData: data,
	}
}

// Codec defines the interface for message encoding/decoding
type Codec interface {
	// Encode encodes an outbound envelope to bytes
	Encode(env *Envelope) ([]byte, error)

	// Decode decodes bytes to a typed inbound message
	Decode(data []byte) (Inbound, error)
}

// JSONCodec implements Codec using JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode implements the Codec interface
func (c *JSONCodec) Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode implements the Codec interface
func (c *JSONCodec) Decode(data []byte) (Inbound, error) {
	return Decode(data)
}
