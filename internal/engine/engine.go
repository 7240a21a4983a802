// Package engine implements the MCP protocol state machine for a single
// session. Transports own one Engine per session and feed it decoded
// JSON-RPC messages; the Engine answers requests and tracks the handshake.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/respondio-mcp/internal/jsonrpc"
	"github.com/ggoodman/respondio-mcp/internal/logctx"
	"github.com/ggoodman/respondio-mcp/mcp"
	"github.com/ggoodman/respondio-mcp/mcpservice"
)

var (
	// ErrClosed is returned by HandleMessage after Close.
	ErrClosed = errors.New("engine closed")
	// ErrCancelled is the cause attached to tool calls cancelled by the client.
	ErrCancelled = errors.New("operation cancelled")
)

// Engine serves one MCP session. HandleMessage may be called concurrently;
// per-session ordering is the transport's responsibility.
type Engine struct {
	srv     *mcpservice.Server
	log     *slog.Logger
	toolCtx func(context.Context) context.Context
	onClose func()

	mu              sync.Mutex
	initialized     bool
	ready           bool
	closed          bool
	protocolVersion string
	clientInfo      mcp.ImplementationInfo

	// in-flight tool calls: request ID -> cancel
	toolCtxMu      sync.Mutex
	toolCtxCancels map[string]context.CancelCauseFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithToolContext decorates the context handed to the tools capability. The
// gateway uses it to bind the session's upstream client.
func WithToolContext(fn func(context.Context) context.Context) EngineOption {
	return func(e *Engine) { e.toolCtx = fn }
}

// WithOnClose registers fn to run once, when the Engine is first closed.
func WithOnClose(fn func()) EngineOption {
	return func(e *Engine) { e.onClose = fn }
}

// New returns an Engine serving srv.
func New(srv *mcpservice.Server, opts ...EngineOption) *Engine {
	e := &Engine{
		srv:            srv,
		log:            slog.Default(),
		toolCtxCancels: make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Initialized reports whether the initialize handshake has been answered
// successfully.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Ready reports whether the client has sent notifications/initialized.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// ProtocolVersion returns the negotiated protocol version, or "" before
// initialize.
func (e *Engine) ProtocolVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.protocolVersion
}

// ClientInfo returns the implementation info the client sent with initialize.
func (e *Engine) ClientInfo() mcp.ImplementationInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clientInfo
}

// Close cancels in-flight tool calls and rejects further messages. It is
// idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.toolCtxMu.Lock()
	for id, cancel := range e.toolCtxCancels {
		cancel(ErrClosed)
		delete(e.toolCtxCancels, id)
	}
	e.toolCtxMu.Unlock()

	if e.onClose != nil {
		e.onClose()
	}
	return nil
}

// HandleMessage processes one inbound message. Requests yield a response;
// notifications and responses yield nil.
func (e *Engine) HandleMessage(ctx context.Context, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Kind().String(),
	})

	switch msg.Kind() {
	case jsonrpc.KindRequest:
		return e.HandleRequest(ctx, msg.AsRequest())
	case jsonrpc.KindNotification:
		e.HandleNotification(ctx, msg.AsRequest())
		return nil, nil
	default:
		// This server never issues requests, so responses have no waiter.
		e.log.DebugContext(ctx, "engine.handle_response.ignored")
		return nil, nil
	}
}

// HandleRequest dispatches a request by method.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch req.Method {
	case mcp.MethodInitialize:
		return e.handleInitialize(ctx, req)
	case mcp.MethodPing:
		return jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	}

	if !e.Initialized() {
		e.log.InfoContext(ctx, "engine.handle_request.uninitialized", slog.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session not initialized", nil), nil
	}

	switch req.Method {
	case mcp.MethodToolsList:
		return e.handleToolsList(ctx, req)
	case mcp.MethodToolsCall:
		return e.handleToolCall(ctx, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unknown", slog.String("method", req.Method))
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil), nil
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.InitializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	version := mcp.NegotiateProtocolVersion(params.ProtocolVersion)

	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "already initialized"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil), nil
	}
	e.initialized = true
	e.protocolVersion = version
	e.clientInfo = params.ClientInfo
	e.mu.Unlock()

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    e.srv.Capabilities(),
		ServerInfo:      e.srv.Info(),
		Instructions:    e.srv.Instructions(),
	}

	log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("protocol_version", version),
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.ListToolsParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	tools := e.srv.Tools()
	if tools == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
	}

	var cursor *string
	if params.Cursor != "" {
		s := params.Cursor
		cursor = &s
	}

	page, err := tools.ListTools(e.decorate(ctx), cursor)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	result := &mcp.ListToolsResult{Tools: page.Items}
	if result.Tools == nil {
		result.Tools = []mcp.Tool{}
	}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page.Items)))
	return jsonrpc.NewResultResponse(req.ID, result)
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	tools := e.srv.Tools()
	if tools == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil), nil
	}

	// Track the call so notifications/cancelled can abort it.
	reqID := req.ID.String()
	toolCtx, toolCancel := context.WithCancelCause(e.decorate(ctx))
	defer toolCancel(context.Canceled)

	e.toolCtxMu.Lock()
	if _, exists := e.toolCtxCancels[reqID]; exists {
		e.toolCtxMu.Unlock()
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", "duplicate request ID"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "duplicate request ID", nil), nil
	}
	e.toolCtxCancels[reqID] = toolCancel
	e.toolCtxMu.Unlock()

	defer func() {
		e.toolCtxMu.Lock()
		delete(e.toolCtxCancels, reqID)
		e.toolCtxMu.Unlock()
	}()

	res, err := tools.CallTool(toolCtx, &params)
	if err != nil {
		if errors.Is(err, mcpservice.ErrToolNotFound) {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "unknown tool: "+params.Name, nil), nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.InfoContext(ctx, "engine.handle_request.cancelled", slog.String("cause", context.Cause(toolCtx).Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "cancelled", nil), nil
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}

	log.InfoContext(ctx, "engine.handle_request.ok", slog.Bool("is_error", res.IsError), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return jsonrpc.NewResultResponse(req.ID, res)
}

// HandleNotification processes a client notification. Unknown notifications
// are ignored.
func (e *Engine) HandleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch note.Method {
	case mcp.NotificationInitialized:
		e.mu.Lock()
		e.ready = e.initialized
		ready := e.ready
		e.mu.Unlock()
		if !ready {
			e.log.InfoContext(ctx, "engine.handle_notification.premature")
			return
		}
		e.log.InfoContext(ctx, "engine.session.initialized")

	case mcp.NotificationCancelled:
		var params mcp.CancelledParams
		if err := json.Unmarshal(note.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		var id jsonrpc.RequestID
		if err := json.Unmarshal(params.RequestID, &id); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		found := e.cancelInFlightRequest(id.String(), params.Reason)
		e.log.InfoContext(ctx, "engine.handle_notification.cancelled", slog.String("request_id", id.String()), slog.Bool("found", found))

	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored", slog.String("method", note.Method))
	}
}

func (e *Engine) cancelInFlightRequest(reqID string, reason string) bool {
	if reqID == "" {
		return false
	}
	e.toolCtxMu.Lock()
	cancel, exists := e.toolCtxCancels[reqID]
	e.toolCtxMu.Unlock()
	if !exists {
		return false
	}
	cause := ErrCancelled
	if reason != "" {
		cause = errors.New(reason)
	}
	cancel(cause)
	return true
}

func (e *Engine) decorate(ctx context.Context) context.Context {
	if e.toolCtx == nil {
		return ctx
	}
	return e.toolCtx(ctx)
}
