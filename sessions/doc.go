// Package sessions holds the process-wide registry of live MCP sessions.
//
// A session moves through three states:
//
//	pending -> active -> closed
//
// It is pending while its initialize handshake is in flight, becomes active
// when the handshake is acknowledged and it is registered, and is closed once
// removed. Only active sessions are ever present in a Registry.
//
// The Registry only guarantees that concurrent callers observe the same
// Session object for an id. Serializing work on a session is the session's
// own responsibility.
package sessions
