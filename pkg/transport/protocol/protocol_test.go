package protocol_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/errors"
	"github.com/cyvasse-online/server/pkg/transport/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Requests(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		validate func(t *testing.T, msg protocol.Inbound)
	}{
		{
			name:  "initComm",
			input: `{"msgType":"serverRequest","msgID":1,"requestData":{"action":"initComm","param":{"protocolVersion":"1.0"}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				m := msg.(protocol.InitComm)
				assert.Equal(t, 1, m.Major)
				assert.Equal(t, 0, m.Minor)
				assert.JSONEq(t, "1", string(m.MsgID()))
			},
		},
		{
			name:  "createGame with flags",
			input: `{"msgType":"serverRequest","msgID":2,"requestData":{"action":"createGame","param":{"ruleSet":"mikelepage","color":"black","random":true,"public":true}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				m := msg.(protocol.CreateGame)
				assert.Equal(t, domain.RuleSetMikeLePage, m.RuleSet)
				assert.Equal(t, domain.Black, m.Color)
				assert.True(t, m.Random)
				assert.True(t, m.Public)
			},
		},
		{
			name:  "createGame defaults rule set",
			input: `{"msgType":"serverRequest","msgID":3,"requestData":{"action":"createGame","param":{"color":"white"}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				m := msg.(protocol.CreateGame)
				assert.Equal(t, domain.RuleSetMikeLePage, m.RuleSet)
				assert.False(t, m.Random)
			},
		},
		{
			name:  "joinGame",
			input: `{"msgType":"serverRequest","msgID":4,"requestData":{"action":"joinGame","param":{"matchID":"ZZZZ"}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				assert.Equal(t, "ZZZZ", msg.(protocol.JoinGame).MatchID)
			},
		},
		{
			name:  "resumeGame",
			input: `{"msgType":"serverRequest","msgID":5,"requestData":{"action":"resumeGame","param":{"playerID":"abcdefgh"}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				assert.Equal(t, "abcdefgh", msg.(protocol.ResumeGame).PlayerID)
			},
		},
		{
			name:  "setUsername trims",
			input: `{"msgType":"serverRequest","msgID":6,"requestData":{"action":"setUsername","param":{"username":"  alice "}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				assert.Equal(t, "alice", msg.(protocol.SetUsername).Username)
			},
		},
		{
			name:  "subscribe keeps unknown names",
			input: `{"msgType":"serverRequest","msgID":7,"requestData":{"action":"subscribeGameListUpdates","param":{"lists":["bogusList","openRandomGames"]}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				m := msg.(protocol.Subscribe)
				assert.Equal(t, []protocol.ListName{"bogusList", protocol.ListOpenRandomGames}, m.Lists)
				assert.False(t, m.Lists[0].Valid())
				assert.True(t, m.Lists[1].Valid())
			},
		},
		{
			name:  "unsubscribe",
			input: `{"msgType":"serverRequest","msgID":8,"requestData":{"action":"unsubscribeGameListUpdates","param":{"lists":["runningPublicGames"]}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				assert.Equal(t, []protocol.ListName{protocol.ListRunningPublicGames}, msg.(protocol.Unsubscribe).Lists)
			},
		},
		{
			name:  "gameMsg",
			input: `{"msgType":"gameMsg","msgID":9,"msgData":{"action":"move","param":{"from":"a1","to":"a2"}}}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				m := msg.(protocol.Game)
				assert.Equal(t, "move", m.Action)
				assert.JSONEq(t, `{"from":"a1","to":"a2"}`, string(m.Param))
			},
		},
		{
			name:  "ack relays verbatim",
			input: `{"msgType":"gameMsgAck","msgID":10}`,
			validate: func(t *testing.T, msg protocol.Inbound) {
				m := msg.(protocol.Relay)
				assert.Equal(t, protocol.MsgTypeGameMsgAck, m.Type)
				assert.Equal(t, `{"msgType":"gameMsgAck","msgID":10}`, string(m.Raw))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Decode([]byte(tt.input))
			require.NoError(t, err)
			tt.validate(t, msg)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		text  string
	}{
		{"invalid json", `{"msgType":`, protocol.TextInvalidJSON},
		{"unknown msgType", `{"msgType":"hello"}`, `msgType "hello" is invalid`},
		{"missing msgType", `{"msgID":1}`, `msgType "" is invalid`},
		{"server reply from client", `{"msgType":"serverReply"}`, protocol.TextNotClientMsgType},
		{"notification from client", `{"msgType":"notification"}`, protocol.TextNotClientMsgType},
		{"unknown action", `{"msgType":"serverRequest","requestData":{"action":"fly"}}`, protocol.TextUnknownAction},
		{"missing requestData", `{"msgType":"serverRequest"}`, protocol.TextUnknownAction},
		{"empty version", `{"msgType":"serverRequest","requestData":{"action":"initComm","param":{"protocolVersion":""}}}`, protocol.TextEmptyVersion},
		{"bad version", `{"msgType":"serverRequest","requestData":{"action":"initComm","param":{"protocolVersion":"one"}}}`, protocol.TextInvalidVersion},
		{"bad color", `{"msgType":"serverRequest","requestData":{"action":"createGame","param":{"color":"green"}}}`, `color "green" is invalid`},
		{"empty matchID", `{"msgType":"serverRequest","requestData":{"action":"joinGame","param":{}}}`, "Expected non-empty string value as matchID in joinGame"},
		{"missing lists", `{"msgType":"serverRequest","requestData":{"action":"subscribeGameListUpdates","param":{}}}`, "Expected array value as lists in subscribeGameListUpdates"},
		{"chat without msgData", `{"msgType":"chatMsg"}`, protocol.TextInvalidMsgData},
		{"game without action", `{"msgType":"gameMsg","msgData":{}}`, protocol.TextInvalidGameAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.Decode([]byte(tt.input))
			require.Error(t, err)
			assert.Equal(t, protocol.CodeCommError, errors.CodeOf(err))
			assert.Equal(t, tt.text, protocol.CommErrorText(err))
		})
	}
}

func TestDecode_InitCommVersions(t *testing.T) {
	tests := []struct {
		version      string
		major, minor int
	}{
		{"1", 1, 0},
		{"1.0", 1, 0},
		{"1.2", 1, 2},
		{"1.0.3", 1, 0},
		{"2.", 2, 0},
		{"3.x", 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			input := `{"msgType":"serverRequest","msgID":1,"requestData":{"action":"initComm","param":{"protocolVersion":"` + tt.version + `"}}}`
			msg, err := protocol.Decode([]byte(input))
			require.NoError(t, err)
			m := msg.(protocol.InitComm)
			assert.Equal(t, tt.major, m.Major)
			assert.Equal(t, tt.minor, m.Minor)
		})
	}

	_, err := protocol.Decode([]byte(`{"msgType":"serverRequest","requestData":{"action":"initComm","param":{"protocolVersion":".1"}}}`))
	assert.Equal(t, protocol.TextInvalidVersion, protocol.CommErrorText(err))
}

func TestChat_Annotated(t *testing.T) {
	msg, err := protocol.Decode([]byte(`{"msgType":"chatMsg","msgID":3,"msgData":{"message":"hi","user":"spoofed"}}`))
	require.NoError(t, err)

	chat := msg.(*protocol.Chat)
	out, err := chat.Annotated("White")
	require.NoError(t, err)
	assert.JSONEq(t, `{"msgType":"chatMsg","msgID":3,"msgData":{"message":"hi","user":"White"}}`, string(out))

	text, ok := chat.Data("message")
	require.True(t, ok)
	assert.JSONEq(t, `"hi"`, string(text))
}

func TestEncode_Envelopes(t *testing.T) {
	codec := protocol.NewJSONCodec()

	tests := []struct {
		name string
		env  *protocol.Envelope
		want string
	}{
		{
			name: "success",
			env:  protocol.RequestSuccess(json.RawMessage("7"), map[string]any{"matchID": "abcd", "playerID": "12345678"}),
			want: `{"msgType":"serverReply","msgID":7,"replyData":{"success":true,"matchID":"abcd","playerID":"12345678"}}`,
		},
		{
			name: "error",
			env:  protocol.RequestErr(json.RawMessage("8"), protocol.CodeGameNotFound, "ZZZZ", nil),
			want: `{"msgType":"serverReply","msgID":8,"replyData":{"success":false,"error":"gameNotFound","errorDetails":"ZZZZ"}}`,
		},
		{
			name: "comm error",
			env:  protocol.CommError(protocol.TextInvalidJSON),
			want: `{"msgType":"notification","notificationData":{"type":"commError","errMsg":"Received message is no valid JSON"}}`,
		},
		{
			name: "user joined",
			env:  protocol.UserJoined("Black"),
			want: `{"msgType":"notification","notificationData":{"type":"userJoined","registered":false,"username":"Black"}}`,
		},
		{
			name: "user left",
			env:  protocol.UserLeft("White"),
			want: `{"msgType":"notification","notificationData":{"type":"userLeft","username":"White"}}`,
		},
		{
			name: "empty list update",
			env:  protocol.ListUpdate(protocol.ListOpenRandomGames, nil),
			want: `{"msgType":"notification","notificationData":{"type":"listUpdate","list":"openRandomGames","games":{}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Encode(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestHandlerRegistry(t *testing.T) {
	registry := protocol.NewHandlerRegistry()

	var got domain.ConnID
	registry.Register(protocol.KindJoinGame, protocol.HandlerFunc(func(_ context.Context, conn domain.ConnID, _ protocol.Inbound) error {
		got = conn
		return nil
	}))

	require.NoError(t, registry.Handle(context.Background(), "c1", protocol.JoinGame{MatchID: "abcd"}))
	assert.Equal(t, domain.ConnID("c1"), got)

	err := registry.Handle(context.Background(), "c1", protocol.InitComm{})
	require.Error(t, err)
	assert.Equal(t, "NO_HANDLER", errors.CodeOf(err))
}
