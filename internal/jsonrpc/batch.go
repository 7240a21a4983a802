package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseMessages decodes a payload holding either one JSON-RPC message or a
// batch array of them. The batch flag reports which form was received so the
// caller can answer in kind.
func ParseMessages(data []byte) (msgs []AnyMessage, batch bool, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return nil, false, ErrParse
	}

	if data[0] != '[' {
		var msg AnyMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return []AnyMessage{msg}, false, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(raws) == 0 {
		return nil, true, ErrEmptyBatch
	}
	msgs = make([]AnyMessage, 0, len(raws))
	for i, raw := range raws {
		var msg AnyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, true, fmt.Errorf("%w: batch element %d: %v", ErrInvalidMessage, i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}

// EncodeResponses renders responses as a single object or a batch array.
// An empty slice encodes to nil so callers can skip writing a body.
func EncodeResponses(responses []*Response, batch bool) ([]byte, error) {
	if len(responses) == 0 {
		return nil, nil
	}
	if !batch && len(responses) == 1 {
		return json.Marshal(responses[0])
	}
	return json.Marshal(responses)
}
