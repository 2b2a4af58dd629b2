package protocol

import (
	"encoding/json"

	"github.com/cyvasse-online/server/pkg/domain"
)

// MajorVersion is the protocol major version spoken by this server.
const MajorVersion = 1

// MsgType is the top-level discriminator of every message.
type MsgType string

const (
	MsgTypeServerRequest MsgType = "serverRequest"
	MsgTypeServerReply   MsgType = "serverReply"
	MsgTypeNotification  MsgType = "notification"
	MsgTypeChatMsg       MsgType = "chatMsg"
	MsgTypeGameMsg       MsgType = "gameMsg"
	MsgTypeChatMsgAck    MsgType = "chatMsgAck"
	MsgTypeGameMsgAck    MsgType = "gameMsgAck"
	MsgTypeGameMsgErr    MsgType = "gameMsgErr"
)

// Action names a server request.
type Action string

const (
	ActionInitComm    Action = "initComm"
	ActionCreateGame  Action = "createGame"
	ActionJoinGame    Action = "joinGame"
	ActionResumeGame  Action = "resumeGame"
	ActionSetUsername Action = "setUsername"
	ActionSubscribe   Action = "subscribeGameListUpdates"
	ActionUnsubscribe Action = "unsubscribeGameListUpdates"
)

// NotificationType names a server-to-client notification.
type NotificationType string

const (
	NotificationUserJoined NotificationType = "userJoined"
	NotificationUserLeft   NotificationType = "userLeft"
	NotificationCommError  NotificationType = "commError"
	NotificationListUpdate NotificationType = "listUpdate"
)

// ListName names a discovery list.
type ListName string

const (
	ListOpenRandomGames    ListName = "openRandomGames"
	ListRunningPublicGames ListName = "runningPublicGames"
)

// Lists enumerates every known discovery list.
var Lists = []ListName{ListOpenRandomGames, ListRunningPublicGames}

// Valid reports whether n names a known discovery list.
func (n ListName) Valid() bool {
	switch n {
	case ListOpenRandomGames, ListRunningPublicGames:
		return true
	default:
		return false
	}
}

// Kind discriminates a decoded inbound message.
type Kind string

const (
	KindInitComm    Kind = "initComm"
	KindCreateGame  Kind = "createGame"
	KindJoinGame    Kind = "joinGame"
	KindResumeGame  Kind = "resumeGame"
	KindSetUsername Kind = "setUsername"
	KindSubscribe   Kind = "subscribe"
	KindUnsubscribe Kind = "unsubscribe"
	KindChat        Kind = "chat"
	KindGame        Kind = "game"
	KindRelay       Kind = "relay"
)

// Inbound is a strongly typed client-to-server message. All string
// matching on the wire format happens in Decode; handlers only ever see
// one of the concrete types below.
type Inbound interface {
	Kind() Kind
	// MsgID is the client-assigned request id, echoed verbatim in replies.
	MsgID() json.RawMessage
}

// Header carries the fields shared by every inbound message.
type Header struct {
	ID json.RawMessage
}

// MsgID implements Inbound.
func (h Header) MsgID() json.RawMessage { return h.ID }

// InitComm opens the conversation and announces the client's protocol version.
type InitComm struct {
	Header
	Major int
	Minor int
}

// CreateGame asks for a new match with the caller seated as Color.
type CreateGame struct {
	Header
	RuleSet domain.RuleSet
	Color   domain.Color
	Random  bool
	Public  bool
}

// JoinGame asks to take the free seat of an existing match.
type JoinGame struct {
	Header
	MatchID string
}

// ResumeGame asks to reclaim a previously held seat by player id.
type ResumeGame struct {
	Header
	PlayerID string
}

// SetUsername sets the caller's display name within its match.
type SetUsername struct {
	Header
	Username string
}

// Subscribe asks for live updates of the named discovery lists. Names are
// kept raw so unknown ones can be reported individually.
type Subscribe struct {
	Header
	Lists []ListName
}

// Unsubscribe stops updates for the named discovery lists.
type Unsubscribe struct {
	Header
	Lists []ListName
}

// Chat is an in-match chat message.
type Chat struct {
	Header
	fields map[string]json.RawMessage
	data   map[string]json.RawMessage
}

// Game is an in-match game update. Action and Param are exposed so the
// rule-specific game object can track state; the message is relayed as is.
type Game struct {
	Header
	Action string
	Param  json.RawMessage
	Raw    []byte
}

// Relay is an in-match acknowledgement or error forwarded verbatim.
type Relay struct {
	Header
	Type MsgType
	Raw  []byte
}

func (InitComm) Kind() Kind    { return KindInitComm }
func (CreateGame) Kind() Kind  { return KindCreateGame }
func (JoinGame) Kind() Kind    { return KindJoinGame }
func (ResumeGame) Kind() Kind  { return KindResumeGame }
func (SetUsername) Kind() Kind { return KindSetUsername }
func (Subscribe) Kind() Kind   { return KindSubscribe }
func (Unsubscribe) Kind() Kind { return KindUnsubscribe }
func (*Chat) Kind() Kind       { return KindChat }
func (Game) Kind() Kind        { return KindGame }
func (Relay) Kind() Kind       { return KindRelay }

// Data returns the raw msgData field of a chat message.
func (c *Chat) Data(key string) (json.RawMessage, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Annotated returns the chat message re-encoded with msgData.user set to user.
// Every other field is preserved as received.
func (c *Chat) Annotated(user string) ([]byte, error) {
	encodedUser, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	data := make(map[string]json.RawMessage, len(c.data)+1)
	for k, v := range c.data {
		data[k] = v
	}
	data["user"] = encodedUser

	encodedData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage, len(c.fields))
	for k, v := range c.fields {
		fields[k] = v
	}
	fields["msgData"] = encodedData

	return json.Marshal(fields)
}
