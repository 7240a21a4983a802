package respondio

import (
	"context"

	"github.com/ggoodman/respondio-mcp/auth"
	"github.com/ggoodman/respondio-mcp/upstream"
)

type clientKey struct{}

// WithClient binds an upstream client to ctx. Sessions use it to carry the
// client obtained when they were created.
func WithClient(ctx context.Context, c *upstream.Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client bound with WithClient, if any.
func ClientFrom(ctx context.Context) (*upstream.Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*upstream.Client)
	return c, ok && c != nil
}

// ClientResolver picks the upstream client for a tool call.
type ClientResolver struct {
	Manager *upstream.Manager
	BaseURL string
	// APIKey is used when neither the request nor the session supplies a credential.
	APIKey string
	// PerRequest lets a bearer credential on the current request override the
	// session's client. It is set in HTTP mode.
	PerRequest bool
}

// Resolve returns the client for ctx.
func (r *ClientResolver) Resolve(ctx context.Context) (*upstream.Client, error) {
	if r.PerRequest && r.Manager != nil {
		if cred, ok := auth.CredentialFrom(ctx); ok {
			return r.Manager.GetClient(r.BaseURL, cred)
		}
	}
	if c, ok := ClientFrom(ctx); ok {
		return c, nil
	}
	if r.APIKey == "" || r.Manager == nil {
		return nil, upstream.ErrNoCredential
	}
	return r.Manager.GetClient(r.BaseURL, r.APIKey)
}
