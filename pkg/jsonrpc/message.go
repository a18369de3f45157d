// Package jsonrpc implements the JSON-RPC 2.0 message codec (C1): parsing
// and serializing the four wire variants (Request, Response, ErrorResponse,
// Notification) that carry every MCP exchange.
//
// Field naming and the doc-comment style follow the teacher's
// pkg/protocol/jsonrpc.go; the four-variant sum type and strict decode
// classification are new, since the teacher only modeled a single
// request/response struct pair.
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/mcpcore/mcp/pkg/mcperr"
)

// Version is the JSON-RPC protocol version literal every message carries.
const Version = "2.0"

// ID is a JSON-RPC request identifier. The wire form is a JSON string or
// integer (never both within one message); this type normalizes both to
// a single comparable representation for the session engine's
// pending-request table (see ID.String), while remembering which wire
// type it arrived as so a Response/ErrorResponse can echo it back
// unchanged, per invariant M1 ("preserving its JSON type").
type ID struct {
	s      string
	isInt  bool
	isNull bool
}

// NewStringID wraps a string id.
func NewStringID(s string) ID { return ID{s: s} }

// NewIntID wraps an integer id, storing its canonical decimal string form.
func NewIntID(n int64) ID { return ID{s: fmt.Sprintf("%d", n), isInt: true} }

// NullID represents the absence of an id (used only for parse-error
// responses per JSON-RPC 2.0).
func NullID() ID { return ID{isNull: true} }

// IsNull reports whether this is the null id.
func (id ID) IsNull() bool { return id.isNull }

// String returns the canonical string form used as a pending-table key.
func (id ID) String() string { return id.s }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isNull {
		return []byte("null"), nil
	}
	if id.isInt {
		return []byte(id.s), nil
	}
	return json.Marshal(id.s)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*id = ID{s: t}
	case float64:
		*id = NewIntID(int64(t))
	case nil:
		*id = NullID()
	default:
		return fmt.Errorf("jsonrpc: invalid id type %T", v)
	}
	return nil
}

// Kind discriminates the four message variants produced by Decode.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
	KindErrorResponse
)

// Request is a JSON-RPC request: expects exactly one Response or
// ErrorResponse sharing its ID (invariant M1).
type Request struct {
	ID     ID              `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Notification is a JSON-RPC request with no id: never expects a reply.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is a successful JSON-RPC reply.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result"`
}

// ErrorResponse is a failed JSON-RPC reply.
type ErrorResponse struct {
	ID    ID          `json:"id"`
	Error *WireError  `json:"error"`
}

// WireError is the `error` sub-object of an ErrorResponse.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is the decoded sum type. Exactly one of the typed fields is
// non-nil, matching the Kind.
type Message struct {
	Kind         Kind
	Request      *Request
	Notification *Notification
	Response     *Response
	ErrorResp    *ErrorResponse
}

// envelope.ID is deliberately json.RawMessage rather than *ID: a
// `"id": null` field (legal for a parse-error ErrorResponse) decodes
// into a nil *ID without ever calling ID.UnmarshalJSON, which would be
// indistinguishable from the id being absent entirely. Keeping the raw
// bytes lets Decode tell "absent" (nil) apart from "present and null"
// (non-nil bytes "null") before it commits to a typed ID.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  *string         `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// Decode parses one JSON-RPC object and classifies it per spec §4.1:
//
//	method + id      -> Request
//	method, no id    -> Notification
//	id + result      -> Response
//	id + error       -> ErrorResponse
//	otherwise        -> InvalidRequest
//
// Malformed JSON bytes fail with KindParseError, reserved strictly for
// that case; everything else that fails classification is InvalidRequest,
// including a missing or non-"2.0" jsonrpc field.
func Decode(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if !json.Valid(data) {
			return nil, mcperr.New(mcperr.KindParseError, err.Error())
		}
		return nil, mcperr.New(mcperr.KindInvalidRequest, err.Error())
	}
	if env.JSONRPC != Version {
		return nil, mcperr.New(mcperr.KindInvalidRequest, "missing or invalid jsonrpc version")
	}

	hasID := env.ID != nil
	var id ID
	if hasID {
		if err := json.Unmarshal(env.ID, &id); err != nil {
			return nil, mcperr.New(mcperr.KindInvalidRequest, "invalid id: "+err.Error())
		}
	}

	switch {
	case env.Method != nil && hasID:
		return &Message{Kind: KindRequest, Request: &Request{ID: id, Method: *env.Method, Params: env.Params}}, nil
	case env.Method != nil && !hasID:
		return &Message{Kind: KindNotification, Notification: &Notification{Method: *env.Method, Params: env.Params}}, nil
	case hasID && env.Result != nil:
		return &Message{Kind: KindResponse, Response: &Response{ID: id, Result: env.Result}}, nil
	case hasID && env.Error != nil:
		return &Message{Kind: KindErrorResponse, ErrorResp: &ErrorResponse{ID: id, Error: env.Error}}, nil
	default:
		return nil, mcperr.New(mcperr.KindInvalidRequest, "message matches no known JSON-RPC shape")
	}
}

// Encode serializes one message variant, omitting fields that are
// semantically absent (no id on notifications, no null params).
func Encode(m *Message) ([]byte, error) {
	switch m.Kind {
	case KindRequest:
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      ID              `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
		}{Version, m.Request.ID, m.Request.Method, m.Request.Params})
	case KindNotification:
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
		}{Version, m.Notification.Method, m.Notification.Params})
	case KindResponse:
		result := m.Response.Result
		if result == nil {
			result = json.RawMessage("{}")
		}
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      ID              `json:"id"`
			Result  json.RawMessage `json:"result"`
		}{Version, m.Response.ID, result})
	case KindErrorResponse:
		return json.Marshal(struct {
			JSONRPC string     `json:"jsonrpc"`
			ID      ID         `json:"id"`
			Error   *WireError `json:"error"`
		}{Version, m.ErrorResp.ID, m.ErrorResp.Error})
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message kind %d", m.Kind)
	}
}

// EncodeRequest is a convenience wrapper for issuing a new outbound
// request with the given method/params/id.
func EncodeRequest(method string, params any, id ID) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return Encode(&Message{Kind: KindRequest, Request: &Request{ID: id, Method: method, Params: raw}})
}

// EncodeNotification is a convenience wrapper for a fire-and-forget
// notification.
func EncodeNotification(method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return Encode(&Message{Kind: KindNotification, Notification: &Notification{Method: method, Params: raw}})
}

// EncodeResult wraps a handler's result into a wire Response.
func EncodeResult(result any, id ID) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return Encode(&Message{Kind: KindResponse, Response: &Response{ID: id, Result: raw}})
}

// EncodeError wraps a code/message/data triple into a wire ErrorResponse.
// id may be the null id only for parse errors, per JSON-RPC 2.0.
func EncodeError(code int, message string, data any, id ID) ([]byte, error) {
	return Encode(&Message{Kind: KindErrorResponse, ErrorResp: &ErrorResponse{
		ID:    id,
		Error: &WireError{Code: code, Message: message, Data: data},
	}})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
