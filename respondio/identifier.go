package respondio

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultNumericIDMaxDigits is the longest bare number treated as a contact ID.
// Anything longer is assumed to be a phone number without its leading "+".
const DefaultNumericIDMaxDigits = 5

// ErrInvalidIdentifier is returned for values that cannot name a contact.
var ErrInvalidIdentifier = errors.New("Invalid identifier format. Use 'id:123', 'email:user@example.com', or 'phone:+1234567890'")

var identValidate = validator.New()

// IdentifierPolicy turns user-supplied contact references into the
// "id:", "email:" or "phone:" forms the API expects.
//
// Bare numbers are ambiguous: a short one is usually an internal contact ID
// and a long one a phone number typed without its country prefix. The cut-off
// is deployment specific, so it is configurable.
type IdentifierPolicy struct {
	NumericIDMaxDigits int
}

// DefaultIdentifierPolicy classifies bare numbers of up to five digits as IDs.
func DefaultIdentifierPolicy() IdentifierPolicy {
	return IdentifierPolicy{NumericIDMaxDigits: DefaultNumericIDMaxDigits}
}

// Normalize returns the canonical form of raw.
func (p IdentifierPolicy) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidIdentifier
	}

	if kind, value, ok := strings.Cut(s, ":"); ok {
		switch strings.ToLower(kind) {
		case "id":
			if isDigits(value) {
				return "id:" + value, nil
			}
		case "email":
			if isEmail(value) {
				return "email:" + value, nil
			}
		case "phone":
			// An explicit phone prefix may omit the "+".
			if isDigits(strings.TrimPrefix(value, "+")) {
				return "phone:" + value, nil
			}
		}
		return "", ErrInvalidIdentifier
	}

	switch {
	case isEmail(s):
		return "email:" + s, nil
	case isPhone(s):
		return "phone:" + s, nil
	case isDigits(s):
		max := p.NumericIDMaxDigits
		if max <= 0 {
			max = DefaultNumericIDMaxDigits
		}
		if len(s) <= max {
			return "id:" + s, nil
		}
		return "phone:+" + s, nil
	}
	return "", ErrInvalidIdentifier
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isEmail(s string) bool {
	return strings.Contains(s, "@") && identValidate.Var(s, "email") == nil
}

func isPhone(s string) bool {
	return strings.HasPrefix(s, "+") && identValidate.Var(s, "e164") == nil
}
