package respondio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/upstream"
)

type sendMessageArgs struct {
	Identifier       string `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	ChannelID        *int64 `json:"channelId,omitempty" jsonschema_description:"Channel to send from. Omit to use the contact's last interacted channel"`
	MessageType      string `json:"messageType" jsonschema:"enum=text,enum=attachment,enum=whatsapp_template,enum=email,enum=quick_reply" jsonschema_description:"Type of message to send" validate:"required,oneof=text attachment whatsapp_template email quick_reply"`
	Text             string `json:"text,omitempty" jsonschema_description:"Message text. Required for text and email messages"`
	Subject          string `json:"subject,omitempty" jsonschema_description:"Email subject. Required for email messages"`
	AttachmentURL    string `json:"attachmentUrl,omitempty" jsonschema_description:"Attachment URL. Required for attachment messages" validate:"omitempty,url"`
	AttachmentType   string `json:"attachmentType,omitempty" jsonschema:"enum=image,enum=video,enum=audio,enum=file" jsonschema_description:"Attachment kind" validate:"omitempty,oneof=image video audio file"`
	TemplateName     string `json:"templateName,omitempty" jsonschema_description:"WhatsApp template name. Required for whatsapp_template messages"`
	TemplateLanguage string `json:"templateLanguage,omitempty" jsonschema_description:"WhatsApp template language code"`
}

// Validate enforces the per-type required fields.
func (a sendMessageArgs) Validate() error {
	switch a.MessageType {
	case "text":
		if a.Text == "" {
			return errors.New("text is required for text messages")
		}
	case "email":
		if a.Text == "" || a.Subject == "" {
			return errors.New("text and subject are required for email messages")
		}
	case "attachment":
		if a.AttachmentURL == "" || a.AttachmentType == "" {
			return errors.New("attachmentUrl and attachmentType are required for attachment messages")
		}
	case "whatsapp_template":
		if a.TemplateName == "" || a.TemplateLanguage == "" {
			return errors.New("templateName and templateLanguage are required for whatsapp_template messages")
		}
	}
	return nil
}

type attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type whatsappTemplate struct {
	Name         string `json:"name"`
	LanguageCode string `json:"languageCode"`
	Components   []any  `json:"components"`
}

type messagePayload struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Attachment *attachment       `json:"attachment,omitempty"`
	Template   *whatsappTemplate `json:"template,omitempty"`
}

type sendMessageBody struct {
	ChannelID *int64         `json:"channelId"`
	Message   messagePayload `json:"message"`
}

// buildMessage maps the flat tool arguments onto the API's message shape.
func buildMessage(a sendMessageArgs) (messagePayload, error) {
	switch a.MessageType {
	case "text":
		return messagePayload{Type: "text", Text: a.Text}, nil
	case "attachment":
		return messagePayload{Type: "attachment", Attachment: &attachment{Type: a.AttachmentType, URL: a.AttachmentURL}}, nil
	case "email":
		return messagePayload{Type: "email", Text: a.Text, Subject: a.Subject}, nil
	case "whatsapp_template":
		return messagePayload{Type: "whatsapp_template", Template: &whatsappTemplate{
			Name:         a.TemplateName,
			LanguageCode: a.TemplateLanguage,
			Components:   []any{},
		}}, nil
	}
	return messagePayload{}, fmt.Errorf("Unsupported message type: %s", a.MessageType)
}

type getMessageArgs struct {
	Identifier string `json:"identifier" jsonschema_description:"Contact identifier: 'id:123', 'email:user@example.com' or 'phone:+1234567890'" validate:"required"`
	MessageID  int64  `json:"messageId" jsonschema_description:"ID of the message to retrieve" validate:"required,gt=0"`
}

func (c *Catalog) messagingTools() []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool("send_message", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[sendMessageArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			msg, err := buildMessage(args)
			if err != nil {
				return c.reject(w, err)
			}
			body := sendMessageBody{ChannelID: args.ChannelID, Message: msg}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Post(ctx, contactPath(id, "message"), nil, body)
			})
		}, mcpservice.WithToolDescription("Send a text, attachment, email or WhatsApp template message to a contact through a channel.")),

		mcpservice.NewTool("get_message", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[getMessageArgs]) error {
			args := r.Args()
			id, err := c.policy.Normalize(args.Identifier)
			if err != nil {
				return c.reject(w, err)
			}
			return c.invoke(ctx, w, r.Name(), func(ctx context.Context, client *upstream.Client) (json.RawMessage, error) {
				return client.Get(ctx, contactPath(id, "message", strconv.FormatInt(args.MessageID, 10)), nil)
			})
		},
			mcpservice.WithToolDescription("Retrieve a message sent to or received from a contact."),
			readOnly,
		),
	}
}
