package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/respondio-mcp/auth"
	"github.com/ggoodman/respondio-mcp/internal/engine"
	"github.com/ggoodman/respondio-mcp/internal/jsonrpc"
	"github.com/ggoodman/respondio-mcp/internal/logctx"
	"github.com/ggoodman/respondio-mcp/internal/metrics"
	"github.com/ggoodman/respondio-mcp/sessions"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	responseMediaTypes   = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	allowedMethods           = "POST, DELETE, OPTIONS"
)

// Transport level rejection messages.
const (
	MsgMethodNotAllowed = "Method not allowed."
	MsgNoValidSession   = "Bad Request: No valid session ID provided"
	MsgInternalError    = "Internal server error"
	MsgParseError       = "Parse error"
	MsgInvalidRequest   = "Invalid Request"
	MsgUnsupportedMedia = "Unsupported Media Type: Content-Type must be application/json"
	MsgShuttingDown     = "Server is shutting down"
)

const (
	// DefaultIdleTimeout is how long a session may go without requests
	// before the reaper closes it.
	DefaultIdleTimeout = 30 * time.Minute

	defaultMaxBodyBytes = 4 << 20
	minReapInterval     = 10 * time.Millisecond
)

// EngineFactory builds the engine for a new session. It runs on the request
// that carries the initialize message, so ctx holds that request's
// credential.
type EngineFactory func(ctx context.Context) (*engine.Engine, error)

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. It is wrapped so request and session
// attributes from the context are attached to every record.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = logctx.Wrap(l) }
}

// WithMetrics records session gauges and close counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithIdleTimeout closes sessions that have not served a request for d. Zero
// disables the reaper.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) { h.idleTimeout = d }
}

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *sessions.Registry) Option {
	return func(h *Handler) {
		if r != nil {
			h.registry = r
		}
	}
}

// WithMaxBodyBytes caps the size of POST bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// Handler routes streamable HTTP requests to per-session transport contexts.
type Handler struct {
	factory      EngineFactory
	registry     *sessions.Registry
	log          *slog.Logger
	metrics      *metrics.Metrics
	idleTimeout  time.Duration
	maxBodyBytes int64
	now          func() time.Time

	mu           sync.Mutex
	shuttingDown bool
	shutdownOnce sync.Once
	reaperStop   context.CancelFunc
	reaperDone   chan struct{}
}

// New returns a Handler that builds session engines with factory. When an idle
// timeout is configured a reaper goroutine runs until Shutdown.
func New(factory EngineFactory, opts ...Option) *Handler {
	h := &Handler{
		factory:      factory,
		registry:     sessions.NewRegistry(),
		log:          logctx.Wrap(slog.Default()),
		metrics:      metrics.New(nil),
		idleTimeout:  DefaultIdleTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if h.idleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		h.reaperStop = cancel
		h.reaperDone = make(chan struct{})
		go h.reapLoop(ctx)
	}
	return h
}

// Registry exposes the live session registry.
func (h *Handler) Registry() *sessions.Registry { return h.registry }

// Len returns the number of active sessions.
func (h *Handler) Len() int { return h.registry.Len() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id, Mcp-Protocol-Version")

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case http.MethodOptions:
		h.handleOptions(w, r)
	default:
		// No standalone server-to-client stream is offered, so GET lands here
		// along with every other method.
		h.log.InfoContext(ctx, "http.method.unsupported")
		w.Header().Set("Allow", allowedMethods)
		writeRPCError(w, http.StatusMethodNotAllowed, jsonrpc.ErrorCodeServerError, MsgMethodNotAllowed)
	}
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Mcp-Session-Id, Mcp-Protocol-Version")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// handleDelete terminates the session named by the header.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.InfoContext(ctx, "http.delete.unsupported")
		w.Header().Set("Allow", allowedMethods)
		writeRPCError(w, http.StatusMethodNotAllowed, jsonrpc.ErrorCodeServerError, MsgMethodNotAllowed)
		return
	}

	tc, ok := h.lookup(sessID)
	if !ok {
		h.log.InfoContext(ctx, "session.delete.miss", slog.String("session_id", sessID))
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeServerError, MsgNoValidSession)
		return
	}

	ctx = h.withSessionData(ctx, tc)
	tc.close(closeReasonDelete)
	h.log.InfoContext(ctx, "session.delete.ok")
	w.WriteHeader(http.StatusNoContent)
}

// handlePost routes one POST body to an existing or a new session.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		writeRPCError(w, http.StatusUnsupportedMediaType, jsonrpc.ErrorCodeServerError, MsgUnsupportedMedia)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.log.WarnContext(ctx, "http.body.read.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, MsgParseError)
		return
	}

	msgs, batch, err := jsonrpc.ParseMessages(body)
	if err != nil {
		code := jsonrpc.CodeFor(err)
		msg := MsgInvalidRequest
		if code == jsonrpc.ErrorCodeParseError {
			msg = MsgParseError
		}
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusBadRequest, code, msg)
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID != "" {
		tc, ok := h.lookup(sessID)
		if !ok {
			h.log.InfoContext(ctx, "session.lookup.miss", slog.String("session_id", sessID))
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeServerError, MsgNoValidSession)
			return
		}
		h.serveExisting(w, r.WithContext(h.withSessionData(ctx, tc)), tc, msgs, batch, start)
		return
	}

	if !findInitialize(msgs) {
		h.log.InfoContext(ctx, "session.initialize.missing")
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeServerError, MsgNoValidSession)
		return
	}
	h.serveInitialize(w, r, msgs, batch, start)
}

func (h *Handler) serveExisting(w http.ResponseWriter, r *http.Request, tc *transportContext, msgs []jsonrpc.AnyMessage, batch bool, start time.Time) {
	ctx := r.Context()

	resps, err := tc.handle(ctx, msgs)
	if err != nil {
		switch {
		case errors.Is(err, errTransportClosed):
			h.log.InfoContext(ctx, "session.closed")
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeServerError, MsgNoValidSession)
		case ctx.Err() != nil:
			// The client went away while queued behind another request.
			h.log.InfoContext(ctx, "session.request.abandoned", slog.String("err", err.Error()))
		default:
			h.log.ErrorContext(ctx, "session.request.fail", slog.String("err", err.Error()))
			writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, MsgInternalError)
		}
		return
	}

	if pv := tc.eng.ProtocolVersion(); pv != "" {
		w.Header().Set(mcpProtocolVersionHeader, pv)
	}
	h.writeResponses(ctx, w, r, resps, batch)
	h.log.InfoContext(ctx, "http.post.ok", slog.Int("messages", len(msgs)), slog.Duration("dur", time.Since(start)))
}

// serveInitialize creates a pending pair, runs the handshake and registers
// the pair once the engine acknowledges it.
func (h *Handler) serveInitialize(w http.ResponseWriter, r *http.Request, msgs []jsonrpc.AnyMessage, batch bool, start time.Time) {
	ctx := r.Context()

	if h.isShuttingDown() {
		h.log.InfoContext(ctx, "session.initialize.rejected")
		writeRPCError(w, http.StatusServiceUnavailable, jsonrpc.ErrorCodeServerError, MsgShuttingDown)
		return
	}

	eng, err := h.factory(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "session.engine.create.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, MsgInternalError)
		return
	}
	tc := newTransportContext(h, eng)

	resps, err := tc.handle(ctx, msgs)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
		tc.close(closeReasonError)
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, MsgInternalError)
		return
	}

	if !tc.eng.Initialized() {
		// The engine answered with a JSON-RPC error; the pair is discarded
		// and the error is relayed to the client.
		h.log.InfoContext(ctx, "session.initialize.rejected")
		tc.close(closeReasonHandshake)
		h.writeResponses(ctx, w, r, resps, batch)
		return
	}

	id, err := tc.activate()
	if err != nil {
		h.log.ErrorContext(ctx, "session.register.fail", slog.String("err", err.Error()))
		tc.close(closeReasonError)
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, MsgInternalError)
		return
	}
	if h.isShuttingDown() {
		// Shutdown drained the registry between the check above and the
		// registration.
		tc.close(closeReasonShutdown)
		writeRPCError(w, http.StatusServiceUnavailable, jsonrpc.ErrorCodeServerError, MsgShuttingDown)
		return
	}

	ctx = h.withSessionData(ctx, tc)
	w.Header().Set(mcpSessionIDHeader, id)
	if pv := tc.eng.ProtocolVersion(); pv != "" {
		w.Header().Set(mcpProtocolVersionHeader, pv)
	}
	h.writeResponses(ctx, w, r, resps, batch)
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Duration("dur", time.Since(start)))
}

// writeResponses encodes resps as JSON or as an event stream, depending on
// what the client accepts.
func (h *Handler) writeResponses(ctx context.Context, w http.ResponseWriter, r *http.Request, resps []*jsonrpc.Response, batch bool) {
	if len(resps) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	mt, _, err := contenttype.GetAcceptableMediaType(r, responseMediaTypes)
	if err != nil {
		mt = jsonMediaType
	}

	if mt.Matches(eventStreamMediaType) {
		f, ok := w.(http.Flusher)
		if ok {
			h.writeEventStream(ctx, w, f, resps)
			return
		}
		h.log.WarnContext(ctx, "sse.flusher.missing")
	}

	b, err := jsonrpc.EncodeResponses(resps, batch)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		writeRPCError(w, http.StatusInternalServerError, jsonrpc.ErrorCodeInternalError, MsgInternalError)
		return
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		h.log.WarnContext(ctx, "http.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) writeEventStream(ctx context.Context, w http.ResponseWriter, f http.Flusher, resps []*jsonrpc.Response) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	for _, res := range resps {
		b, err := json.Marshal(res)
		if err != nil {
			h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
			return
		}
		if err := writeSSEEvent(wf, "", b); err != nil {
			h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
			return
		}
	}
}

func (h *Handler) lookup(id string) (*transportContext, bool) {
	s, ok := h.registry.Lookup(id)
	if !ok {
		return nil, false
	}
	tc, ok := s.(*transportContext)
	return tc, ok
}

func (h *Handler) withSessionData(ctx context.Context, tc *transportContext) context.Context {
	var userID string
	if p, ok := auth.PrincipalFrom(ctx); ok {
		userID = p.UserID()
	}
	return logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       tc.SessionID(),
		UserID:          userID,
		ProtocolVersion: tc.eng.ProtocolVersion(),
		State:           string(tc.State()),
	})
}

func (h *Handler) syncSessionGauge() {
	h.metrics.ActiveSessions.Set(float64(h.registry.Len()))
}

func (h *Handler) isShuttingDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shuttingDown
}

func (h *Handler) reapLoop(ctx context.Context) {
	defer close(h.reaperDone)

	interval := h.idleTimeout / 4
	if interval < minReapInterval {
		interval = minReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapIdle()
		}
	}
}

// reapIdle closes every session that has been idle for longer than the idle
// timeout. Sessions that are serving a request are left alone.
func (h *Handler) reapIdle() int {
	cutoff := h.now().Add(-h.idleTimeout)
	var reaped int
	for _, s := range h.registry.Snapshot() {
		tc, ok := s.(*transportContext)
		if !ok {
			continue
		}
		last, busy := tc.idleSince()
		if busy || last.After(cutoff) {
			continue
		}
		tc.close(closeReasonIdle)
		reaped++
	}
	if reaped > 0 {
		h.log.Info("session.reap", slog.Int("count", reaped))
	}
	return reaped
}

// Shutdown stops the reaper and closes every registered session. Each entry
// is removed from the registry before it is closed. Calling Shutdown more
// than once is safe.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		h.shuttingDown = true
		h.mu.Unlock()

		if h.reaperStop != nil {
			h.reaperStop()
			select {
			case <-h.reaperDone:
			case <-ctx.Done():
			}
		}

		drained := h.registry.Drain()
		for _, s := range drained {
			if tc, ok := s.(*transportContext); ok {
				tc.close(closeReasonShutdown)
			}
		}
		h.syncSessionGauge()
		h.log.InfoContext(ctx, "sessions.shutdown.ok", slog.Int("closed", len(drained)))
	})
	return nil
}

// writeRPCError emits a JSON-RPC error object with a null id for rejections
// that happen before a message can be answered.
func writeRPCError(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, code, msg, nil))
}
