package mcpservice

import (
	"context"

	"github.com/ggoodman/respondio-mcp/mcp"
)

// ToolsCapability lists and executes tools.
type ToolsCapability interface {
	// ListTools returns a page of tools. A nil or empty cursor requests the
	// first page; when more tools remain Page.NextCursor is set.
	ListTools(ctx context.Context, cursor *string) (Page[mcp.Tool], error)
	// CallTool executes the named tool. Unknown tools yield ErrToolNotFound.
	CallTool(ctx context.Context, req *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

// Server describes what the engine advertises during initialize and which
// capability serves tool requests.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	tools        ToolsCapability
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// NewServer builds a Server using functional options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{info: mcp.ImplementationInfo{Name: "mcp-server", Version: "0.0.0"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithToolsCapability sets the tools capability.
func WithToolsCapability(tools ToolsCapability) ServerOption {
	return func(s *Server) { s.tools = tools }
}

// Info returns the advertised implementation info.
func (s *Server) Info() mcp.ImplementationInfo { return s.info }

// Instructions returns the initialize instructions, possibly empty.
func (s *Server) Instructions() string { return s.instructions }

// Tools returns the tools capability, or nil when none is configured.
func (s *Server) Tools() ToolsCapability { return s.tools }

// Capabilities renders the server capability advertisement.
func (s *Server) Capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	if s.tools != nil {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	return caps
}
