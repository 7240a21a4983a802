package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only "jsonrpc" tag accepted on the wire.
const Version = "2.0"

// Kind classifies a decoded message.
type Kind int

const (
	KindResponse Kind = iota
	KindRequest
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return "response"
	}
}

// AnyMessage is one element of an inbound body before it is routed. Clients
// send requests and notifications; responses are accepted so a batch that
// carries one is not rejected, and are then ignored.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON rejects anything that is not JSON-RPC 2.0 and any object
// that mixes a method with a result or error.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type wire AnyMessage
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if w.JSONRPCVersion != Version {
		return fmt.Errorf("jsonrpc tag %q, want %q", w.JSONRPCVersion, Version)
	}

	hasResult, hasError := len(w.Result) > 0, w.Error != nil
	switch {
	case w.Method != "" && (hasResult || hasError):
		return errors.New("method alongside result or error")
	case w.Method == "" && hasResult == hasError:
		return errors.New("response needs exactly one of result or error")
	}

	*m = AnyMessage(w)
	return nil
}

// Kind reports whether m is a request, a notification or a response.
func (m *AnyMessage) Kind() Kind {
	switch {
	case m.Method == "":
		return KindResponse
	case m.ID == nil:
		return KindNotification
	default:
		return KindRequest
	}
}

// IsRequestFor reports whether m is a request (not a notification) for
// method.
func (m *AnyMessage) IsRequestFor(method string) bool {
	return m.Method == method && !m.ID.IsNil()
}

// AsRequest narrows m for dispatch. It returns nil for responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{Method: m.Method, Params: m.Params, ID: m.ID}
}

// Request is a request or, with a nil ID, a notification.
type Request struct {
	Method string
	Params json.RawMessage
	ID     *RequestID
}

// Response is what the gateway writes back. ID is always rendered, as null
// when the request could not be identified.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Error is the error member of a Response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewResultResponse answers id with result encoded as JSON.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: Version, Result: b, ID: id}, nil
}

// NewErrorResponse answers id with an error. Transport level rejections pass
// a nil id.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: Version,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}
