package jsonrpc

import (
	"errors"
	"fmt"
)

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeServerError is the generic implementation-defined server error
	// used for transport level rejections (bad session, method not allowed).
	ErrorCodeServerError ErrorCode = -32000
)

var (
	// ErrParse is returned when a payload is not valid JSON.
	ErrParse = errors.New("parse error")
	// ErrInvalidMessage is returned when valid JSON does not form a JSON-RPC message.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrEmptyBatch is returned for a batch array with no elements.
	ErrEmptyBatch = errors.New("empty batch")
)

// Error implements the error interface so a JSON-RPC error object can be
// returned through ordinary Go error paths.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// CodeFor maps a decode error from ParseMessages onto the JSON-RPC code that
// should be reported to the peer.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrParse):
		return ErrorCodeParseError
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrEmptyBatch):
		return ErrorCodeInvalidRequest
	default:
		return ErrorCodeInternalError
	}
}
