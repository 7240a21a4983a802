// Package mcp contains the Model Context Protocol data types shared by the
// engine and both transports. Only the surface a tool server needs is
// modelled: the initialize handshake, ping, tool listing and tool calls.
//
// The package holds no transport logic. Streamable HTTP and stdio import these
// types and implement their own framing, authentication and session handling.
//
// Method and notification names are plain string constants (MethodToolsList,
// NotificationCancelled) so they compare directly against a decoded
// message's method.
//
// tools/list pages with an opaque cursor: ListToolsParams.Cursor echoes the
// NextCursor of the previous ListToolsResult.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//		Content: []mcp.ContentBlock{{Type: "text", Text: "hello"}},
//	}
package mcp
