// Package respondio exposes the Respond.io workspace API as a catalog of MCP
// tools: contacts, messaging, conversations, comments and workspace
// metadata.
//
// Tools never talk to the network directly. Each call resolves an
// upstream.Client through a ClientResolver, which prefers a per-request
// credential, then the client bound to the session, then the configured API
// key.
package respondio
