package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is the id of a request: a JSON string or number. It is echoed
// back exactly as received. A nil *RequestID means the message had no id.
type RequestID struct {
	raw json.RawMessage
	key string
}

// NewRequestID builds an id from a Go string or number. Values of any other
// type yield an id that renders as null.
func NewRequestID(v any) *RequestID {
	id := &RequestID{}
	b, err := json.Marshal(v)
	if err != nil {
		return id
	}
	_ = id.UnmarshalJSON(b)
	return id
}

// String returns the key used to match a notifications/cancelled against an
// in-flight call. Numeric ids compare by value, so 7 and 7.0 are the same id.
func (id *RequestID) String() string {
	if id == nil {
		return ""
	}
	return id.key
}

// IsNil reports whether the id is absent.
func (id *RequestID) IsNil() bool {
	return id == nil || len(id.raw) == 0
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty request id")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("request id: %w", err)
		}
		id.key = s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n := json.Number(data)
		if i, err := n.Int64(); err == nil {
			id.key = strconv.FormatInt(i, 10)
		} else if f, err := n.Float64(); err == nil {
			id.key = strconv.FormatFloat(f, 'g', -1, 64)
		} else {
			return fmt.Errorf("request id %s: %w", data, err)
		}
	default:
		return fmt.Errorf("request id must be a string or number, got %s", data)
	}
	id.raw = append(json.RawMessage(nil), data...)
	return nil
}
