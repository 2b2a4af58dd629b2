package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cyvasse-online/server/pkg/domain"
)

// MaxUsernameLength bounds display names, counted in runes.
const MaxUsernameLength = 32

type rawRequest struct {
	Action string          `json:"action"`
	Param  json.RawMessage `json:"param"`
}

type rawEnvelope struct {
	MsgType     *string         `json:"msgType"`
	MsgID       json.RawMessage `json:"msgID"`
	RequestData *rawRequest     `json:"requestData"`
	MsgData     json.RawMessage `json:"msgData"`
}

// Decode parses one client-to-server message into its typed form. Every
// failure is a protocol error whose Message is the commError text.
func Decode(data []byte) (Inbound, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, commErr(TextInvalidJSON)
	}

	if env.MsgType == nil {
		return nil, commErr(`msgType "" is invalid`)
	}

	h := Header{ID: env.MsgID}

	switch t := MsgType(*env.MsgType); t {
	case MsgTypeServerRequest:
		if env.RequestData == nil {
			return nil, commErr(TextUnknownAction)
		}
		return decodeRequest(h, env.RequestData)
	case MsgTypeChatMsg:
		return decodeChat(h, data, env.MsgData)
	case MsgTypeGameMsg:
		return decodeGame(h, data, env.MsgData)
	case MsgTypeChatMsgAck, MsgTypeGameMsgAck, MsgTypeGameMsgErr:
		return Relay{Header: h, Type: t, Raw: data}, nil
	case MsgTypeServerReply, MsgTypeNotification:
		return nil, commErr(TextNotClientMsgType)
	default:
		return nil, commErr(fmt.Sprintf("msgType %q is invalid", *env.MsgType))
	}
}

func decodeRequest(h Header, req *rawRequest) (Inbound, error) {
	switch Action(req.Action) {
	case ActionInitComm:
		return decodeInitComm(h, req.Param)
	case ActionCreateGame:
		return decodeCreateGame(h, req.Param)
	case ActionJoinGame:
		var p struct {
			MatchID string `json:"matchID"`
		}
		if err := decodeParam(req, &p); err != nil {
			return nil, err
		}
		if p.MatchID == "" {
			return nil, commErr("Expected non-empty string value as matchID in joinGame")
		}
		return JoinGame{Header: h, MatchID: p.MatchID}, nil
	case ActionResumeGame:
		var p struct {
			PlayerID string `json:"playerID"`
		}
		if err := decodeParam(req, &p); err != nil {
			return nil, err
		}
		if p.PlayerID == "" {
			return nil, commErr("Expected non-empty string value as playerID in resumeGame")
		}
		return ResumeGame{Header: h, PlayerID: p.PlayerID}, nil
	case ActionSetUsername:
		var p struct {
			Username string `json:"username"`
		}
		if err := decodeParam(req, &p); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(p.Username)
		if name == "" || utf8.RuneCountInString(name) > MaxUsernameLength {
			return nil, commErr(fmt.Sprintf("Expected username of 1 to %d characters in setUsername", MaxUsernameLength))
		}
		return SetUsername{Header: h, Username: name}, nil
	case ActionSubscribe:
		lists, err := decodeLists(req)
		if err != nil {
			return nil, err
		}
		return Subscribe{Header: h, Lists: lists}, nil
	case ActionUnsubscribe:
		lists, err := decodeLists(req)
		if err != nil {
			return nil, err
		}
		return Unsubscribe{Header: h, Lists: lists}, nil
	default:
		return nil, commErr(TextUnknownAction)
	}
}

func decodeParam(req *rawRequest, v any) error {
	if len(req.Param) == 0 || bytes.Equal(req.Param, []byte("null")) {
		return commErr(fmt.Sprintf("Expected object value as param in %s", req.Action))
	}
	if err := json.Unmarshal(req.Param, v); err != nil {
		return commErr(fmt.Sprintf("Invalid param in %s", req.Action))
	}
	return nil
}

func decodeInitComm(h Header, param json.RawMessage) (Inbound, error) {
	var p struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(param) > 0 {
		if err := json.Unmarshal(param, &p); err != nil {
			return nil, commErr(TextEmptyVersion)
		}
	}
	if p.ProtocolVersion == "" {
		return nil, commErr(TextEmptyVersion)
	}

	// Only the major part has to parse; "1", "1.0" and "1.0.3" are all
	// major version 1.
	majorStr, rest, _ := strings.Cut(p.ProtocolVersion, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return nil, commErr(TextInvalidVersion)
	}
	minorStr, _, _ := strings.Cut(rest, ".")
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		minor = 0
	}

	return InitComm{Header: h, Major: major, Minor: minor}, nil
}

func decodeCreateGame(h Header, param json.RawMessage) (Inbound, error) {
	var p struct {
		RuleSet string `json:"ruleSet"`
		Color   string `json:"color"`
		Random  bool   `json:"random"`
		Public  bool   `json:"public"`
	}
	if err := decodeParam(&rawRequest{Action: string(ActionCreateGame), Param: param}, &p); err != nil {
		return nil, err
	}

	ruleSet := domain.RuleSetMikeLePage
	if p.RuleSet != "" {
		rs, err := domain.ParseRuleSet(p.RuleSet)
		if err != nil {
			return nil, commErr(fmt.Sprintf("ruleSet %q is invalid", p.RuleSet))
		}
		ruleSet = rs
	}

	color, err := domain.ParseColor(p.Color)
	if err != nil {
		return nil, commErr(fmt.Sprintf("color %q is invalid", p.Color))
	}

	return CreateGame{
		Header:  h,
		RuleSet: ruleSet,
		Color:   color,
		Random:  p.Random,
		Public:  p.Public,
	}, nil
}

func decodeLists(req *rawRequest) ([]ListName, error) {
	var p struct {
		Lists []string `json:"lists"`
	}
	if err := decodeParam(req, &p); err != nil {
		return nil, err
	}
	if p.Lists == nil {
		return nil, commErr(fmt.Sprintf("Expected array value as lists in %s", req.Action))
	}

	lists := make([]ListName, 0, len(p.Lists))
	for _, l := range p.Lists {
		lists = append(lists, ListName(l))
	}
	return lists, nil
}

func decodeChat(h Header, data []byte, msgData json.RawMessage) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, commErr(TextInvalidJSON)
	}

	var md map[string]json.RawMessage
	if len(msgData) == 0 || json.Unmarshal(msgData, &md) != nil || md == nil {
		return nil, commErr(TextInvalidMsgData)
	}

	return &Chat{Header: h, fields: fields, data: md}, nil
}

func decodeGame(h Header, data []byte, msgData json.RawMessage) (Inbound, error) {
	var md struct {
		Action string          `json:"action"`
		Param  json.RawMessage `json:"param"`
	}
	if len(msgData) == 0 || json.Unmarshal(msgData, &md) != nil {
		return nil, commErr(TextInvalidMsgData)
	}
	if md.Action == "" {
		return nil, commErr(TextInvalidGameAction)
	}

	return Game{Header: h, Action: md.Action, Param: md.Param, Raw: data}, nil
}
