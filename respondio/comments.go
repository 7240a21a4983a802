package respondio

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/upstream"
)

type createCommentArgs struct {
	Identifier string `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	Text       string `json:"text" jsonschema:"maxLength=1000" jsonschema_description:"Comment text. Mention users with {{@user.ID}}" validate:"required,max=1000"`
}

func (c *Catalog) commentTools() []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool("create_comment", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[createCommentArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			body := map[string]string{"text": args.Text}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, contactPath(id, "comment"), nil, body)
			})
		}, mcpservice.WithToolDescription("Add an internal comment to a contact's conversation.")),
	}
}
