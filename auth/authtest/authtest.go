// Package authtest mints bearer tokens shaped like Respond.io user tokens.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultClaims returns a valid user payload for space 42.
func DefaultClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"id":      7,
		"spaceId": 42,
		"orgId":   3,
		"type":    "user",
		"iat":     time.Now().Unix(),
	}
}

// Token signs claims with a throwaway HMAC key. The gateway never checks the
// signature, so any key will do.
func Token(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("authtest-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

// UserToken returns a token for DefaultClaims with overrides applied. A nil
// override value removes the claim.
func UserToken(t testing.TB, overrides map[string]any) string {
	t.Helper()
	claims := DefaultClaims()
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return Token(t, claims)
}
