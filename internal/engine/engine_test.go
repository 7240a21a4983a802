package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ggoodman/respondio-mcp/internal/jsonrpc"
	"github.com/ggoodman/respondio-mcp/mcp"
	"github.com/ggoodman/respondio-mcp/mcpservice"
)

type ctxKey struct{}

type echoArgs struct {
	Text string `json:"text" validate:"required"`
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool("echo", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
			text := r.Args().Text
			if v, ok := ctx.Value(ctxKey{}).(string); ok {
				text = v + ":" + text
			}
			return w.AppendText(text)
		}),
		mcpservice.NewTool("block", func(ctx context.Context, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[struct{}]) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	)
	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "test", Version: "0.0.1"}),
		mcpservice.WithToolsCapability(tools),
	)
	opts = append([]EngineOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e := New(srv, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustMessage(t *testing.T, raw string) *jsonrpc.AnyMessage {
	t.Helper()
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return &msg
}

func mustHandle(t *testing.T, e *Engine, raw string) *jsonrpc.Response {
	t.Helper()
	res, err := e.HandleMessage(context.Background(), mustMessage(t, raw))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	return res
}

func mustUnmarshalJSON[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return v
}

const initializeMsg = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`

func TestInitialize(t *testing.T) {
	e := newTestEngine(t)
	if e.Initialized() {
		t.Fatalf("engine should start uninitialized")
	}

	res := mustHandle(t, e, initializeMsg)
	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	initRes := mustUnmarshalJSON[mcp.InitializeResult](t, res.Result)
	if want, got := "2025-03-26", initRes.ProtocolVersion; want != got {
		t.Fatalf("unexpected protocol version: want %s got %s", want, got)
	}
	if initRes.Capabilities.Tools == nil {
		t.Fatalf("expected tools capability")
	}
	if want, got := "test", initRes.ServerInfo.Name; want != got {
		t.Fatalf("unexpected server name: want %s got %s", want, got)
	}
	if !e.Initialized() || e.Ready() {
		t.Fatalf("unexpected state: initialized=%v ready=%v", e.Initialized(), e.Ready())
	}

	if res := mustHandle(t, e, `{"jsonrpc":"2.0","method":"notifications/initialized"}`); res != nil {
		t.Fatalf("notifications must not produce a response")
	}
	if !e.Ready() {
		t.Fatalf("expected ready after notifications/initialized")
	}

	again := mustHandle(t, e, initializeMsg)
	if again.Error == nil || again.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid request on second initialize, got %+v", again)
	}
}

func TestInitializeUnknownVersionFallsBackToLatest(t *testing.T) {
	e := newTestEngine(t)
	res := mustHandle(t, e, `{"jsonrpc":"2.0","id":"a","method":"initialize","params":{"protocolVersion":"1999-01-01","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`)
	initRes := mustUnmarshalJSON[mcp.InitializeResult](t, res.Result)
	if want, got := mcp.LatestProtocolVersion, initRes.ProtocolVersion; want != got {
		t.Fatalf("unexpected protocol version: want %s got %s", want, got)
	}
}

func TestInitializeInvalidParams(t *testing.T) {
	e := newTestEngine(t)
	res := mustHandle(t, e, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":"nope"}`)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", res)
	}
	if e.Initialized() {
		t.Fatalf("failed initialize must not mark the engine initialized")
	}
}

func TestRequestsBeforeInitialize(t *testing.T) {
	e := newTestEngine(t)

	res := mustHandle(t, e, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", res)
	}

	ping := mustHandle(t, e, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	if ping.Error != nil {
		t.Fatalf("ping must be allowed before initialize: %+v", ping.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	e := newTestEngine(t)
	mustHandle(t, e, initializeMsg)
	res := mustHandle(t, e, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", res)
	}
}

func TestTools(t *testing.T) {
	e := newTestEngine(t, WithToolContext(func(ctx context.Context) context.Context {
		return context.WithValue(ctx, ctxKey{}, "bound")
	}))
	mustHandle(t, e, initializeMsg)

	t.Run("list", func(t *testing.T) {
		res := mustHandle(t, e, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		list := mustUnmarshalJSON[mcp.ListToolsResult](t, res.Result)
		if want, got := 2, len(list.Tools); want != got {
			t.Fatalf("unexpected tool count: want %d got %d", want, got)
		}
	})

	t.Run("call uses decorated context", func(t *testing.T) {
		res := mustHandle(t, e, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
		out := mustUnmarshalJSON[mcp.CallToolResult](t, res.Result)
		if want, got := "bound:hi", out.Content[0].Text; want != got {
			t.Fatalf("unexpected text: want %q got %q", want, got)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		res := mustHandle(t, e, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope"}}`)
		if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInvalidParams {
			t.Fatalf("expected invalid params, got %+v", res)
		}
	})

	t.Run("argument errors are tool results", func(t *testing.T) {
		res := mustHandle(t, e, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
		out := mustUnmarshalJSON[mcp.CallToolResult](t, res.Result)
		if !out.IsError {
			t.Fatalf("expected isError result")
		}
	})
}

func TestCancelledNotification(t *testing.T) {
	e := newTestEngine(t)
	mustHandle(t, e, initializeMsg)

	done := make(chan *jsonrpc.Response, 1)
	go func() {
		res, _ := e.HandleMessage(context.Background(), mustMessage(t, `{"jsonrpc":"2.0","id":"slow","method":"tools/call","params":{"name":"block"}}`))
		done <- res
	}()

	deadline := time.After(2 * time.Second)
	for {
		e.toolCtxMu.Lock()
		_, inflight := e.toolCtxCancels["slow"]
		e.toolCtxMu.Unlock()
		if inflight {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("tool call never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mustHandle(t, e, `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":"slow","reason":"user abort"}}`)

	select {
	case res := <-done:
		if res.Error == nil || res.Error.Message != "cancelled" {
			t.Fatalf("expected cancelled error, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled call did not return")
	}
}

func TestClose(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := e.HandleMessage(context.Background(), mustMessage(t, initializeMsg)); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseRunsHookOnce(t *testing.T) {
	var calls int
	e := newTestEngine(t, WithOnClose(func() { calls++ }))
	for i := 0; i < 3; i++ {
		if err := e.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if want, got := 1, calls; want != got {
		t.Fatalf("unexpected hook calls: want %d got %d", want, got)
	}
}
