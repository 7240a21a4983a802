// Package stdio implements a single-connection MCP transport over
// stdin/stdout for running the server as a subprocess of a desktop client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : none; the upstream credential comes from configuration
//	Sessions         : exactly one engine for the life of the process
//	Framing          : newline delimited JSON-RPC, batches allowed
//
// Logs must never go to stdout; the composition root points the logger at
// stderr.
//
// Example:
//
//	eng := engine.New(srv, engine.WithToolContext(bind))
//	h := stdio.NewHandler(eng, stdio.WithLogger(log))
//	if err := h.Serve(ctx); err != nil { ... }
package stdio
