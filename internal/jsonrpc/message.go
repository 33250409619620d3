package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wagiedev/mcp-supervisor-go/internal/errors"
)

// Version is the protocol version string carried by every envelope.
const Version = "2.0"

// Standard JSON-RPC error codes.
const (
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603
)

// Kind classifies a decoded message.
type Kind int

const (
	// KindInvalid is a message that fits none of the other shapes.
	KindInvalid Kind = iota
	// KindRequest carries an id and a method.
	KindRequest
	// KindResponse carries an id and a result or an error.
	KindResponse
	// KindNotification carries a method and no id.
	KindNotification
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "invalid"
	}
}

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message is the union envelope of requests, responses and notifications.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Kind reports which of the envelope shapes the message has.
func (m *Message) Kind() Kind {
	hasID := len(m.ID) > 0 && !bytes.Equal(bytes.TrimSpace(m.ID), []byte("null"))

	switch {
	case hasID && m.Method != "":
		return KindRequest
	case hasID && (m.Result != nil || m.Error != nil):
		return KindResponse
	case !hasID && m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// NewRequest builds a request envelope with a numeric id.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}

	return &Message{
		JSONRPC: Version,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}

	return &Message{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResult builds a success response echoing the raw request id.
func NewResult(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	return &Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response echoing the raw request id.
func NewErrorResponse(id json.RawMessage, code int64, message string) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// Encode serialises the message as a single newline-terminated line.
func Encode(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	return append(data, '\n'), nil
}

// Decode parses a single line into a message.
//
// Blank lines and non-JSON lines return a *errors.JSONDecodeError carrying
// the raw input.
func Decode(line []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, &errors.JSONDecodeError{RawData: string(line), Err: fmt.Errorf("empty line")}
	}

	var m Message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, &errors.JSONDecodeError{RawData: string(line), Err: err}
	}

	return &m, nil
}

// IDKey returns the canonical correlation key of a raw id.
//
// String ids are unquoted, so the string "7" and the number 7 share a key.
func IDKey(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	return string(trimmed)
}

// ProtocolError converts the response error object into a typed error.
func (e *Error) ProtocolError(method string) *errors.ProtocolError {
	return &errors.ProtocolError{
		Method:  method,
		Code:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	return data, nil
}
