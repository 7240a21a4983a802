package respondio

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/upstream"
)

type assignConversationArgs struct {
	Identifier string  `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	Assignee   *string `json:"assignee" jsonschema:"nullable" jsonschema_description:"User ID or email of the assignee. Null unassigns the conversation"`
}

type assigneeBody struct {
	Assignee *string `json:"assignee"`
}

type conversationStatusArgs struct {
	Identifier string `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	Status     string `json:"status" jsonschema:"enum=open,enum=close" jsonschema_description:"New conversation status" validate:"required,oneof=open close"`
	Category   string `json:"category,omitempty" jsonschema:"maxLength=128" jsonschema_description:"Closing note category. Required when closing" validate:"omitempty,max=128"`
	Summary    string `json:"summary,omitempty" jsonschema:"maxLength=512" jsonschema_description:"Conversation summary. Required when closing" validate:"omitempty,max=512"`
}

// Validate requires a closing note when closing.
func (a conversationStatusArgs) Validate() error {
	if a.Status == "close" && (a.Category == "" || a.Summary == "") {
		return errors.New("category and summary are required when closing a conversation")
	}
	return nil
}

type conversationStatusBody struct {
	Status   string `json:"status"`
	Category string `json:"category,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

func (c *Catalog) conversationTools() []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool("assign_conversation", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[assignConversationArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, contactPath(id, "conversation", "assignee"), nil, assigneeBody{Assignee: args.Assignee})
			})
		}, mcpservice.WithToolDescription("Assign a contact's conversation to a user, or unassign it.")),

		mcpservice.NewTool("update_conversation_status", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[conversationStatusArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			body := conversationStatusBody{Status: args.Status, Category: args.Category, Summary: args.Summary}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, contactPath(id, "conversation", "status"), nil, body)
			})
		}, mcpservice.WithToolDescription("Open or close a contact's conversation. Closing requires a category and summary.")),
	}
}
