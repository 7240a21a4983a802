package respondio

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/upstream"
)

const identifierHelp = "Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'. Bare emails, phone numbers and short numeric IDs are accepted"

type customField struct {
	Name  string `json:"name" jsonschema_description:"Custom field name" validate:"required"`
	Value any    `json:"value" jsonschema_description:"Custom field value"`
}

type contactRefArgs struct {
	Identifier string `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
}

type contactFields struct {
	FirstName    string        `json:"firstName,omitempty"`
	LastName     string        `json:"lastName,omitempty"`
	Email        string        `json:"email,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Language     string        `json:"language,omitempty"`
	CustomFields []customField `json:"custom_fields,omitempty"`
}

type createContactArgs struct {
	Identifier   string        `json:"identifier" jsonschema_description:"Identifier of the new contact: 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	FirstName    string        `json:"firstName" jsonschema_description:"First name" validate:"required"`
	LastName     string        `json:"lastName,omitempty" jsonschema_description:"Last name"`
	Email        string        `json:"email,omitempty" jsonschema_description:"Email address" validate:"omitempty,email"`
	Phone        string        `json:"phone,omitempty" jsonschema_description:"Phone number with country code (e.g. +60123456789)" validate:"omitempty,e164"`
	Language     string        `json:"language,omitempty" jsonschema_description:"ISO 639-1 language code (e.g. en or ms)" validate:"omitempty,max=8"`
	CustomFields []customField `json:"custom_fields,omitempty" jsonschema_description:"Custom field values" validate:"omitempty,dive"`
}

func (a createContactArgs) fields() contactFields {
	return contactFields{
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		Phone:        a.Phone,
		Language:     a.Language,
		CustomFields: a.CustomFields,
	}
}

type updateContactArgs struct {
	Identifier   string        `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	FirstName    string        `json:"firstName,omitempty" jsonschema_description:"New first name"`
	LastName     string        `json:"lastName,omitempty" jsonschema_description:"New last name"`
	Email        string        `json:"email,omitempty" jsonschema_description:"New email address" validate:"omitempty,email"`
	Phone        string        `json:"phone,omitempty" jsonschema_description:"New phone number with country code" validate:"omitempty,e164"`
	Language     string        `json:"language,omitempty" jsonschema_description:"New ISO 639-1 language code" validate:"omitempty,max=8"`
	CustomFields []customField `json:"custom_fields,omitempty" jsonschema_description:"Custom field values to update" validate:"omitempty,dive"`
}

func (a updateContactArgs) fields() contactFields {
	return contactFields{
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		Phone:        a.Phone,
		Language:     a.Language,
		CustomFields: a.CustomFields,
	}
}

type listContactsArgs struct {
	pageArgs
	Search   string `json:"search,omitempty" jsonschema_description:"Free text search over contacts"`
	Timezone string `json:"timezone,omitempty" jsonschema:"default=UTC" jsonschema_description:"Timezone used to evaluate the search (e.g. Asia/Kuala_Lumpur)"`
}

type tagArgs struct {
	Identifier string   `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	Tags       []string `json:"tags" jsonschema:"minItems=1,maxItems=10" jsonschema_description:"Tag names" validate:"required,min=1,max=10,dive,required,max=255"`
}

type contactListFilter struct {
	And []any `json:"$and"`
}

type contactListBody struct {
	Search   string            `json:"search"`
	Filter   contactListFilter `json:"filter"`
	Timezone string            `json:"timezone"`
}

type tagsBody struct {
	Tags []string `json:"tags"`
}

func contactPath(id string, rest ...string) string {
	p := "/contact/" + id
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Catalog) contactTools() []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool("get_contact", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[contactRefArgs]) error {
			id, err := c.policy.Normalize(r.Args().Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Get(ctx, contactPath(id), nil)
			})
		},
			mcpservice.WithToolDescription("Retrieve a contact by ID, email or phone number. "+identifierHelp+"."),
			readOnly,
		),

		mcpservice.NewTool("create_contact", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[createContactArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, contactPath(id), nil, args.fields())
			})
		}, mcpservice.WithToolDescription("Create a new contact in the workspace.")),

		mcpservice.NewTool("update_contact", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[updateContactArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Put(ctx, contactPath(id), args.fields())
			})
		}, mcpservice.WithToolDescription("Update an existing contact's information.")),

		mcpservice.NewTool("delete_contact", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[contactRefArgs]) error {
			id, err := c.policy.Normalize(r.Args().Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Delete(ctx, contactPath(id), nil)
			})
		},
			mcpservice.WithToolDescription("Delete a contact from the workspace."),
			destructive,
		),

		mcpservice.NewTool("list_contacts", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[listContactsArgs]) error {
			args := r.Args()
			body := contactListBody{
				Search:   args.Search,
				Filter:   contactListFilter{And: []any{}},
				Timezone: args.Timezone,
			}
			if body.Timezone == "" {
				body.Timezone = defaultTimezone
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, "/contact/list", args.query(), body)
			})
		},
			mcpservice.WithToolDescription("List contacts with optional search."),
			readOnly,
		),

		mcpservice.NewTool("add_contact_tags", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[tagArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, contactPath(id, "tag"), nil, tagsBody{Tags: args.Tags})
			})
		}, mcpservice.WithToolDescription("Add up to 10 tags to a contact.")),

		mcpservice.NewTool("remove_contact_tags", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[tagArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Delete(ctx, contactPath(id, "tag"), tagsBody{Tags: args.Tags})
			})
		},
			mcpservice.WithToolDescription("Remove tags from a contact."),
			destructive,
		),
	}
}
