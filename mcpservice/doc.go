// Package mcpservice provides the building blocks a tool server plugs into the
// protocol engine: a server description, typed tools whose input schema is
// reflected from a Go struct, and a container that lists and dispatches them.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo" validate:"required,max=100"`
//	}
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool[EchoArgs]("echo", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//	        return w.AppendText("you said: " + r.Args().Message)
//	    }, mcpservice.WithToolDescription("Echo a message back to the caller")),
//	)
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// Arguments are decoded strictly (unknown fields are rejected), then checked
// against their `validate` struct tags and, when the argument type implements
// Validator, its Validate method. Failures become tool error results rather
// than protocol errors so the model can correct its call.
package mcpservice
