// Package server composes the Respond.io tool catalog, the upstream client
// manager and the session router into a runnable gateway.
//
// Gateway serves the streamable HTTP transport together with /health and
// /metrics. RunStdio serves a single session over a pair of streams.
package server
