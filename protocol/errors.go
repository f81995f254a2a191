package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrClosed is returned by a response wait whose underlying channel died
	// before a matching reply arrived.
	ErrClosed = errors.New("protocol: channel closed")

	// ErrTimeout is returned by a response wait that saw no matching reply
	// within its deadline.
	ErrTimeout = errors.New("protocol: response timed out")
)

// Code is a protocol-level error code returned by the server in a numeric
// reply. The catalogue is closed; codes outside it map to CodeUnknown.
type Code int

const (
	CodeUnknown                 Code = 0
	CodeInvalidPrincipal        Code = 205
	CodeNicknameChangeIllegal   Code = 209
	CodePrincipalListFull       Code = 210
	CodePrincipalAlreadyOnList  Code = 215
	CodePrincipalNotOnList      Code = 216
	CodePrincipalNotOnline      Code = 217
	CodeAlreadyInMode           Code = 218
	CodeTooManyGroups           Code = 223
	CodeInvalidGroup            Code = 224
	CodePrincipalNotInGroup     Code = 225
	CodeInternalServerError     Code = 500
	CodeChallengeResponseFailed Code = 540
	CodeServerIsUnavailable     Code = 601
	CodeCallingTooRapidly       Code = 713
	CodeIllegalPropertyValue    Code = 715
	CodeChangingTooRapidly      Code = 800
	CodeServerTooBusy           Code = 910
	CodeAuthenticationFailed    Code = 911
)

var codeNames = map[Code]string{
	CodeInvalidPrincipal:        "invalid principal",
	CodeNicknameChangeIllegal:   "nickname change illegal",
	CodePrincipalListFull:       "principal list full",
	CodePrincipalAlreadyOnList:  "principal already on list",
	CodePrincipalNotOnList:      "principal not on list",
	CodePrincipalNotOnline:      "principal not online",
	CodeAlreadyInMode:           "already in mode",
	CodeTooManyGroups:           "too many groups",
	CodeInvalidGroup:            "invalid group",
	CodePrincipalNotInGroup:     "principal not in group",
	CodeInternalServerError:     "internal server error",
	CodeChallengeResponseFailed: "challenge response failed",
	CodeServerIsUnavailable:     "server is unavailable",
	CodeCallingTooRapidly:       "calling too rapidly",
	CodeIllegalPropertyValue:    "illegal property value",
	CodeChangingTooRapidly:      "changing too rapidly",
	CodeServerTooBusy:           "server too busy",
	CodeAuthenticationFailed:    "authentication failed",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}

	return "unknown (" + strconv.Itoa(int(c)) + ")"
}

// knownCode maps a raw numeric code onto the catalogue.
func knownCode(raw int) Code {
	c := Code(raw)

	if _, ok := codeNames[c]; ok {
		return c
	}

	return CodeUnknown
}

// ServerErrorResponse is the failure a response wait resolves with when the
// server answers a transaction with a numeric error reply.
type ServerErrorResponse struct {
	// RawCode is the numeric code exactly as it appeared on the wire.
	RawCode int

	// Code is RawCode mapped onto the known catalogue, CodeUnknown otherwise.
	Code Code
}

func (e *ServerErrorResponse) Error() string {
	return fmt.Sprintf("protocol: server error %d (%s)", e.RawCode, e.Code)
}
