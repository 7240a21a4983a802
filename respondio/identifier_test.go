package respondio

import (
	"errors"
	"testing"
)

func TestIdentifierPolicyNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"id:123", "id:123"},
		{"email:user@example.com", "email:user@example.com"},
		{"phone:+60123456789", "phone:+60123456789"},
		{"phone:60123456789", "phone:60123456789"},
		{"user@example.com", "email:user@example.com"},
		{"+60123456789", "phone:+60123456789"},
		{"12345", "id:12345"},
		{"123456", "phone:+123456"},
		{"  42 ", "id:42"},
	}
	p := DefaultIdentifierPolicy()
	for _, tc := range cases {
		got, err := p.Normalize(tc.in)
		if err != nil {
			t.Fatalf("Normalize(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q): want %q got %q", tc.in, tc.want, got)
		}
	}
}

func TestIdentifierPolicyRejects(t *testing.T) {
	p := DefaultIdentifierPolicy()
	for _, in := range []string{"", "id:abc", "email:nope", "phone:+", "phone:6012a", "phone:++60123", "john", "12a45", "fax:123"} {
		if _, err := p.Normalize(in); !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("Normalize(%q): expected ErrInvalidIdentifier, got %v", in, err)
		}
	}
}

func TestIdentifierPolicyThreshold(t *testing.T) {
	p := IdentifierPolicy{NumericIDMaxDigits: 8}
	got, err := p.Normalize("1234567")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if want := "id:1234567"; got != want {
		t.Fatalf("unexpected identifier: want %q got %q", want, got)
	}
}
