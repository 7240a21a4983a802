package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user.
	UserID() string
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns associated user info.
// It should return an error wrapping ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

type principalKey struct{}
type credentialKey struct{}

// WithPrincipal attaches the authenticated principal to ctx.
func WithPrincipal(ctx context.Context, p UserInfo) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by the middleware.
func PrincipalFrom(ctx context.Context) (UserInfo, bool) {
	p, ok := ctx.Value(principalKey{}).(UserInfo)
	return p, ok
}

// WithCredential attaches the raw bearer credential to ctx.
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey{}, credential)
}

// CredentialFrom returns the bearer credential of the current request.
func CredentialFrom(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(credentialKey{}).(string)
	return c, ok && c != ""
}
