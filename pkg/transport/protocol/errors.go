package protocol

import (
	"github.com/cyvasse-online/server/pkg/errors"
)

// Reply error codes. These strings are part of the wire contract.
const (
	CodeConnInUse                 = "connInUse"
	CodeGameNotFound              = "gameNotFound"
	CodeGameEmpty                 = "gameEmpty"
	CodeGameFull                  = "gameFull"
	CodeListDoesNotExist          = "listDoesNotExist"
	CodeDifferingMajorProtVersion = "differingMajorProtVersion"
	CodeNotInMatch                = "notInMatch"
	CodeMaintenance               = "maintenance"

	// CodeCommError marks errors reported through a commError notification
	// instead of a reply.
	CodeCommError = "commError"
)

// Admission and state errors. Compare with errors.Is; the reply code is the
// error's Code.
var (
	ErrConnInUse      = errors.New(errors.ErrorTypeConflict, CodeConnInUse, "connection already in use")
	ErrGameNotFound   = errors.New(errors.ErrorTypeNotFound, CodeGameNotFound, "no match with this id")
	ErrGameEmpty      = errors.New(errors.ErrorTypeConflict, CodeGameEmpty, "no active player to join")
	ErrGameFull       = errors.New(errors.ErrorTypeConflict, CodeGameFull, "match already has two players")
	ErrListNotExist   = errors.New(errors.ErrorTypeNotFound, CodeListDoesNotExist, "discovery list does not exist")
	ErrDifferingMajor = errors.New(errors.ErrorTypeValidation, CodeDifferingMajorProtVersion, "differing major protocol version")
	ErrNotInMatch     = errors.New(errors.ErrorTypeConflict, CodeNotInMatch, "not attached to a match")
	ErrMaintenance    = errors.New(errors.ErrorTypeUnavailable, CodeMaintenance, "server is in maintenance mode")
)

// Communication error texts sent back in commError notifications.
const (
	TextInvalidJSON       = "Received message is no valid JSON"
	TextNotClientMsgType  = "This msgType is not intended for client-to-server messages"
	TextUnknownAction     = "Unrecognized server request action"
	TextEmptyVersion      = "Expected non-empty string value as protocolVersion in initComm"
	TextInvalidVersion    = "Expected protocolVersion of the form <major>.<minor>"
	TextNotAttached       = "This message type requires the connection to be attached to a match"
	TextInvalidMsgData    = "Expected object value as msgData"
	TextInvalidGameAction = "Expected non-empty string value as msgData.action in gameMsg"
)

// commErr builds a protocol error whose Message is the text sent to the client.
func commErr(text string) *errors.Error {
	return errors.New(errors.ErrorTypeProtocol, CodeCommError, text)
}

// CommErrorText returns the text a commError notification should carry
// for err, falling back to a generic message.
func CommErrorText(err error) string {
	if e, ok := errors.As(err); ok && e.Code == CodeCommError {
		return e.Message
	}
	return "Internal server error"
}

var replyErrors = map[string]*errors.Error{
	CodeConnInUse:                 ErrConnInUse,
	CodeGameNotFound:              ErrGameNotFound,
	CodeGameEmpty:                 ErrGameEmpty,
	CodeGameFull:                  ErrGameFull,
	CodeListDoesNotExist:          ErrListNotExist,
	CodeDifferingMajorProtVersion: ErrDifferingMajor,
	CodeNotInMatch:                ErrNotInMatch,
	CodeMaintenance:               ErrMaintenance,
}

// ErrorForCode maps a reply error code back to its sentinel, carrying
// details. Unknown codes become protocol errors with that code.
func ErrorForCode(code, details string) *errors.Error {
	if e, ok := replyErrors[code]; ok {
		return e.WithDetails(details)
	}
	return errors.New(errors.ErrorTypeProtocol, code, "request failed").WithDetails(details)
}
