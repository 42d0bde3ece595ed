// Package session implements the wire-level half of C8: frame shapes,
// constant-time token authentication, and a codec over a persistent
// duplex stream. It knows nothing about tools, workspaces or RunContexts —
// internal/daemon wires this protocol layer to the rest of the kernel.
package session

import (
	"crypto/subtle"
	"encoding/json"
)

// ProtocolVersion is the integer protocol version from §6; a client
// detecting a mismatch must abort.
const ProtocolVersion = 1

// MaxFrameBytes is the maximum payload per frame (§4.7).
const MaxFrameBytes = 5 * 1024 * 1024

// WireError is the {code, message, details?} shape carried on a failed
// response frame.
type WireError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Request is a client-to-server frame: {type:"req", id, method, params?}.
type Request struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a server-to-client frame: {type:"res", id, ok, payload?, error?}.
type Response struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id"`
	OK      bool            `json:"ok"`
	Payload any             `json:"payload,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// NewResponse builds a successful response frame.
func NewResponse(id json.RawMessage, payload any) Response {
	return Response{Type: "res", ID: id, OK: true, Payload: payload}
}

// NewErrorResponse builds a failed response frame.
func NewErrorResponse(id json.RawMessage, wireErr WireError) Response {
	return Response{Type: "res", ID: id, OK: false, Error: &wireErr}
}

// Event is a server-to-client frame: {type:"event", event, payload, seq}.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Seq     uint64 `json:"seq"`
}

// NewEvent builds an event frame; Seq is assigned by the caller (the
// session's per-connection counter) immediately before sending, never here,
// so strict ordering (§5 ordering guarantee (b)) holds even if construction
// and send are separated.
func NewEvent(event string, payload any) Event {
	return Event{Type: "event", Event: event, Payload: payload}
}

// Wire error codes that originate at the protocol layer rather than
// passing through from the tool layer unchanged (§4.7).
const (
	WireCodeParseError      = "PARSE_ERROR"
	WireCodeInvalidRequest  = "INVALID_REQUEST"
	WireCodeUnauthorized    = "UNAUTHORIZED"
	WireCodeMethodNotFound  = "METHOD_NOT_FOUND"
	WireCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	WireCodeAuthFailed      = "AUTH_FAILED"
)

// ConnectParams is the body of a connect request.
type ConnectParams struct {
	Token  string `json:"token"`
	Client *struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"client,omitempty"`
}

// TokensEqual performs the constant-time, length-checked comparison §6 and
// §8 require: unequal lengths short-circuit without a byte-level compare
// (subtle.ConstantTimeCompare already returns 0 for mismatched lengths
// without looking at the contents, satisfying the "no common-prefix timing
// leak" requirement).
func TokensEqual(got, want string) bool {
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
