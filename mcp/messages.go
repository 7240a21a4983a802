package mcp

import "encoding/json"

// JSON-RPC methods the gateway answers.
const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// Notifications the gateway reacts to. Any other notification is dropped.
const (
	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
)

// InitializeParams opens a session. ProtocolVersion is negotiated against
// SupportedProtocolVersions; an unknown version gets the latest one back.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult answers initialize. It advertises the tools capability
// and nothing else.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsParams asks for a page of the Respond.io tool catalog. Cursor is
// the opaque value of a previous NextCursor.
type ListToolsParams struct {
	Cursor string `json:"cursor,omitzero"`
}

// ListToolsResult is one page of the catalog. NextCursor is empty on the
// last page.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitzero"`
}

// CallToolParams names a catalog tool. Arguments are decoded and validated
// by the tool itself.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult carries a tool's output. Upstream failures are reported
// with IsError set rather than as JSON-RPC errors.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitzero"`
	Meta    map[string]any `json:"_meta,omitempty"`
}

// CancelledParams aborts an in-flight tools/call. RequestID is kept raw
// since clients send either a string or a number.
type CancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitzero"`
}

// EmptyResult answers ping.
type EmptyResult struct{}
