package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ggoodman/respondio-mcp/mcp"
)

type echoArgs struct {
	Message string `json:"message" jsonschema:"description=Text to echo" validate:"required,max=10"`
	Limit   int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,default=10" validate:"omitempty,min=1,max=100"`
	Mode    string `json:"mode,omitempty" jsonschema:"enum=loud,enum=quiet" validate:"omitempty,oneof=loud quiet"`
}

type pairArgs struct {
	Status   string `json:"status" validate:"required,oneof=open close"`
	Category string `json:"category,omitempty"`
}

func (a pairArgs) Validate() error {
	if a.Status == "close" && a.Category == "" {
		return errors.New("category is required when closing")
	}
	return nil
}

func echoTool() StaticTool {
	return NewTool[echoArgs]("echo", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[echoArgs]) error {
		return w.AppendText("you said: " + r.Args().Message)
	}, WithToolDescription("echo tool"))
}

func call(t *testing.T, c *ToolsContainer, name string, args string) *mcp.CallToolResult {
	t.Helper()
	res, err := c.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(args)})
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	return res
}

func TestNewTool_Schema(t *testing.T) {
	c := NewToolsContainer(echoTool())
	list := c.Snapshot()
	if want, got := 1, len(list); want != got {
		t.Fatalf("unexpected tool count: want %d got %d", want, got)
	}
	schema := list[0].InputSchema
	if schema.AdditionalProperties {
		t.Fatalf("expected strict schema")
	}
	if want, got := []string{"message"}, schema.Required; len(got) != 1 || got[0] != want[0] {
		t.Fatalf("unexpected required: want %v got %v", want, got)
	}
	limit, ok := schema.Properties["limit"]
	if !ok {
		t.Fatalf("missing limit property")
	}
	if limit.Minimum == nil || *limit.Minimum != 1 || limit.Maximum == nil || *limit.Maximum != 100 {
		t.Fatalf("unexpected limit bounds: %+v", limit)
	}
	if want, got := "Text to echo", schema.Properties["message"].Description; want != got {
		t.Fatalf("unexpected description: want %q got %q", want, got)
	}
	if want, got := 2, len(schema.Properties["mode"].Enum); want != got {
		t.Fatalf("unexpected enum size: want %d got %d", want, got)
	}
}

func TestNewTool_NoArguments(t *testing.T) {
	tool := NewTool("ping", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[struct{}]) error {
		return w.AppendText("pong")
	})
	schema := tool.Descriptor.InputSchema
	if want, got := "object", schema.Type; want != got {
		t.Fatalf("unexpected schema type: want %q got %q", want, got)
	}
	if want, got := 0, len(schema.Properties); want != got {
		t.Fatalf("unexpected property count: want %d got %d", want, got)
	}

	c := NewToolsContainer(tool)
	for _, args := range []string{``, `{}`, `null`} {
		res := call(t, c, "ping", args)
		if res.IsError || len(res.Content) != 1 || res.Content[0].Text != "pong" {
			t.Fatalf("unexpected result for %q: %+v", args, res)
		}
	}
	if res := call(t, c, "ping", `{"extra":1}`); !res.IsError {
		t.Fatalf("expected unknown argument to be rejected")
	}
}

func TestNewTool_Call(t *testing.T) {
	c := NewToolsContainer(echoTool(), NewTool[pairArgs]("status", func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[pairArgs]) error {
		return w.AppendJSON(map[string]string{"status": r.Args().Status})
	}))

	t.Run("ok", func(t *testing.T) {
		res := call(t, c, "echo", `{"message":"hi"}`)
		if res.IsError {
			t.Fatalf("unexpected error result: %+v", res)
		}
		if want, got := "you said: hi", res.Content[0].Text; want != got {
			t.Fatalf("unexpected text: want %q got %q", want, got)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		res := call(t, c, "echo", `{"message":"hi","extra":1}`)
		if !res.IsError {
			t.Fatalf("expected error result")
		}
	})

	t.Run("tag validation", func(t *testing.T) {
		res := call(t, c, "echo", `{"message":"this is far too long"}`)
		if !res.IsError {
			t.Fatalf("expected error result")
		}
		if !strings.Contains(res.Content[0].Text, "message must have length at most 10") {
			t.Fatalf("unexpected message: %s", res.Content[0].Text)
		}
	})

	t.Run("missing required", func(t *testing.T) {
		res := call(t, c, "echo", ``)
		if !res.IsError || !strings.Contains(res.Content[0].Text, "message is required") {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("cross field validation", func(t *testing.T) {
		res := call(t, c, "status", `{"status":"close"}`)
		if !res.IsError || !strings.Contains(res.Content[0].Text, "category is required") {
			t.Fatalf("unexpected result: %+v", res)
		}
		res = call(t, c, "status", `{"status":"close","category":"done"}`)
		if res.IsError {
			t.Fatalf("unexpected error: %+v", res)
		}
		if !strings.Contains(res.Content[0].Text, `"status": "close"`) {
			t.Fatalf("expected indented JSON, got %s", res.Content[0].Text)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := c.CallTool(context.Background(), &mcp.CallToolParams{Name: "nope"})
		if !errors.Is(err, ErrToolNotFound) {
			t.Fatalf("expected ErrToolNotFound, got %v", err)
		}
	})
}

func TestToolsContainer_Pagination(t *testing.T) {
	var defs []StaticTool
	for i := 0; i < 5; i++ {
		defs = append(defs, NewTool[echoArgs](fmt.Sprintf("t%d", i), func(ctx context.Context, w ToolResponseWriter, r *ToolRequest[echoArgs]) error {
			return nil
		}))
	}
	c := NewToolsContainer(defs...)
	c.SetPageSize(2)

	var (
		cursor *string
		names  []string
	)
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatalf("pagination did not terminate")
		}
		page, err := c.ListTools(context.Background(), cursor)
		if err != nil {
			t.Fatalf("ListTools: %v", err)
		}
		for _, tool := range page.Items {
			names = append(names, tool.Name)
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if want, got := "t0,t1,t2,t3,t4", strings.Join(names, ","); want != got {
		t.Fatalf("unexpected listing: want %s got %s", want, got)
	}

	if c.Add(defs[0]) {
		t.Fatalf("expected duplicate Add to be rejected")
	}
}
