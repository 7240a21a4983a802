package respondio

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/upstream"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type getUserArgs struct {
	UserID string `json:"userId" jsonschema_description:"ID of the user to retrieve" validate:"required,excludesall=/?#"`
}

type createCustomFieldArgs struct {
	Name          string   `json:"name" jsonschema:"maxLength=50" jsonschema_description:"Custom field name (max 50 characters)" validate:"required,max=50"`
	Slug          string   `json:"slug,omitempty" jsonschema:"pattern=^[A-Za-z0-9_]+$" jsonschema_description:"Identifier made of letters, digits and underscores. Generated from the name when omitted"`
	Description   string   `json:"description,omitempty" jsonschema_description:"Custom field description"`
	DataType      string   `json:"dataType" jsonschema:"enum=text,enum=list,enum=checkbox,enum=email,enum=number,enum=url,enum=date,enum=time" jsonschema_description:"Data type of the field" validate:"required,oneof=text list checkbox email number url date time"`
	AllowedValues []string `json:"allowedValues,omitempty" jsonschema_description:"Allowed values. Required for list fields" validate:"omitempty,dive,required"`
}

// Validate checks the slug format and list values.
func (a createCustomFieldArgs) Validate() error {
	if a.Slug != "" && !slugPattern.MatchString(a.Slug) {
		return errors.New("slug may only contain letters, digits and underscores")
	}
	if a.DataType == "list" && len(a.AllowedValues) == 0 {
		return errors.New("allowedValues is required for list fields")
	}
	return nil
}

type customFieldBody struct {
	Name          string   `json:"name"`
	Slug          string   `json:"slug,omitempty"`
	Description   string   `json:"description,omitempty"`
	DataType      string   `json:"dataType"`
	AllowedValues []string `json:"allowedValues,omitempty"`
}

// listTool builds a paginated GET over a workspace collection.
func (c *Catalog) listTool(name, path, description string) mcpservice.StaticTool {
	return mcpservice.NewTool(name, func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[pageArgs]) error {
		q := r.Args().query()
		return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
			return client.Get(ctx, path, q)
		})
	},
		mcpservice.WithToolDescription(description),
		readOnly,
	)
}

func (c *Catalog) workspaceTools() []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		c.listTool("list_users", "/space/user", "List the users of the workspace."),

		mcpservice.NewTool("get_user", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[getUserArgs]) error {
			userID := r.Args().UserID
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Get(ctx, "/space/user/"+userID, nil)
			})
		},
			mcpservice.WithToolDescription("Retrieve a workspace user by ID."),
			readOnly,
		),

		c.listTool("list_custom_fields", "/space/custom_field", "List the custom fields defined in the workspace."),

		mcpservice.NewTool("create_custom_field", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[createCustomFieldArgs]) error {
			args := r.Args()
			body := customFieldBody{
				Name:          args.Name,
				Slug:          args.Slug,
				Description:   args.Description,
				DataType:      args.DataType,
				AllowedValues: args.AllowedValues,
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, "/space/custom_field", nil, body)
			})
		}, mcpservice.WithToolDescription("Create a custom contact field in the workspace.")),

		c.listTool("list_channels", "/space/channel", "List the messaging channels connected to the workspace."),
		c.listTool("list_closing_notes", "/space/closing_notes", "List the closing note categories of the workspace."),
	}
}
