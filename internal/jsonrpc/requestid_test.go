package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestRequestID(t *testing.T) {
	t.Run("is echoed as received", func(t *testing.T) {
		for _, raw := range []string{`"abc"`, `42`, `1.5`, `-3`} {
			var id RequestID
			if err := json.Unmarshal([]byte(raw), &id); err != nil {
				t.Fatalf("unmarshal %s: %v", raw, err)
			}
			b, err := json.Marshal(&id)
			if err != nil {
				t.Fatalf("marshal %s: %v", raw, err)
			}
			if want, got := raw, string(b); want != got {
				t.Fatalf("unexpected encoding: want %s got %s", want, got)
			}
		}
	})

	t.Run("numeric ids match by value", func(t *testing.T) {
		var a, b RequestID
		if err := json.Unmarshal([]byte(`7`), &a); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := json.Unmarshal([]byte(`7.0`), &b); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if want, got := a.String(), b.String(); want != got {
			t.Fatalf("unexpected key: want %q got %q", want, got)
		}
		if want, got := "7", NewRequestID(7).String(); want != got {
			t.Fatalf("unexpected key: want %q got %q", want, got)
		}
	})

	t.Run("rejects other JSON types", func(t *testing.T) {
		for _, raw := range []string{`true`, `{}`, `[1]`} {
			var id RequestID
			if err := json.Unmarshal([]byte(raw), &id); err == nil {
				t.Fatalf("expected error for %s", raw)
			}
		}
	})

	t.Run("absent id renders null", func(t *testing.T) {
		var id *RequestID
		if !id.IsNil() {
			t.Fatalf("nil id must report IsNil")
		}
		if !NewRequestID(struct{}{}).IsNil() {
			t.Fatalf("unsupported value must yield a nil id")
		}
		b, err := json.Marshal(NewRequestID(struct{}{}))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if want, got := "null", string(b); want != got {
			t.Fatalf("unexpected encoding: want %s got %s", want, got)
		}
	})
}
