// Package streaminghttp implements the MCP streamable HTTP transport as a
// session router. It mounts as a standard net/http handler on the protocol
// path and owns one transport context per live session.
//
// # Routing
//
// A POST without an Mcp-Session-Id header must carry an initialize request
// (alone or inside a batch). The handler asks its EngineFactory for a fresh
// engine, wraps it in a pending transport context and processes the body.
// When the engine acknowledges the handshake the context mints a session id
// and registers itself in the sessions.Registry before any response bytes
// are written. A handshake that fails closes the pair and leaves the
// registry untouched.
//
// A POST carrying the header is routed to the registered context. Unknown
// ids are rejected with 400.
//
// Responses are JSON when the client accepts it and a Server-Sent Events
// stream with one frame per response otherwise. Bodies holding only
// notifications or responses are answered with 202.
//
// # Lifetime
//
// Sessions end on DELETE, idle expiry, fatal errors and Shutdown. Every path
// goes through the same close callback, which removes the registry entry only
// while it still maps to the closing context.
//
// Construction
//
//	h := streaminghttp.New(factory,
//	    streaminghttp.WithLogger(log),
//	    streaminghttp.WithIdleTimeout(30*time.Minute),
//	)
//	mux.Handle("/mcp", h)
//	defer h.Shutdown(ctx)
package streaminghttp
