package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/respondio-mcp/internal/engine"
	"github.com/ggoodman/respondio-mcp/internal/jsonrpc"
	"github.com/ggoodman/respondio-mcp/internal/logctx"
	"github.com/google/uuid"
)

const defaultMaxLineBytes = 4 << 20

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
type Handler struct {
	eng     *engine.Engine
	r       io.Reader
	w       io.Writer
	l       *slog.Logger
	maxLine int

	writeMu sync.Mutex
	served  bool
	mu      sync.Mutex
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:     eng,
		r:       os.Stdin,
		w:       os.Stdout,
		l:       slog.Default(),
		maxLine: defaultMaxLineBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.l = logctx.Wrap(h.l)
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It may be called at most once per Handler.
//
// Lines carrying requests are served one at a time in arrival order by a
// worker; notification-only lines are handled inline so a
// notifications/cancelled can reach a running tool call. EOF drains queued
// work and yields a nil error; cancellation closes the engine and yields
// ctx.Err().
func (h *Handler) Serve(ctx context.Context) error {
	h.mu.Lock()
	if h.served {
		h.mu.Unlock()
		return errors.New("stdio: Serve called twice")
	}
	h.served = true
	h.mu.Unlock()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: "stdio", State: "active"})

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go h.readLines(ctx, lines, readErr)

	work := make(chan lineWork, 64)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for lw := range work {
			h.handleLine(lw.ctx, lw.msgs, lw.batch)
		}
	}()

	stop := func() {
		close(work)
		<-workerDone
		_ = h.eng.Close()
	}

	h.l.InfoContext(ctx, "stdio.serve.start")
	for {
		select {
		case <-ctx.Done():
			// Closing the engine first aborts whatever the worker is running.
			_ = h.eng.Close()
			close(work)
			<-workerDone
			h.l.InfoContext(ctx, "stdio.serve.cancelled")
			return ctx.Err()
		case err := <-readErr:
			stop()
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
				return fmt.Errorf("stdio: read: %w", err)
			}
			h.l.InfoContext(ctx, "stdio.serve.eof")
			return nil
		case line := <-lines:
			lineCtx := logctx.WithRequestData(ctx, &logctx.RequestData{RequestID: uuid.NewString(), Method: "stdio"})
			msgs, batch, err := jsonrpc.ParseMessages(line)
			if err != nil {
				h.l.WarnContext(lineCtx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
				h.writeResponses(lineCtx, []*jsonrpc.Response{parseErrorResponse(err)}, false)
				continue
			}
			if !containsRequest(msgs) {
				h.handleLine(lineCtx, msgs, batch)
				continue
			}
			select {
			case work <- lineWork{ctx: lineCtx, msgs: msgs, batch: batch}:
			case <-ctx.Done():
			}
		}
	}
}

type lineWork struct {
	ctx   context.Context
	msgs  []jsonrpc.AnyMessage
	batch bool
}

func parseErrorResponse(err error) *jsonrpc.Response {
	code := jsonrpc.CodeFor(err)
	msg := "Invalid Request"
	if code == jsonrpc.ErrorCodeParseError {
		msg = "Parse error"
	}
	return jsonrpc.NewErrorResponse(nil, code, msg, nil)
}

func (h *Handler) readLines(ctx context.Context, out chan<- []byte, errc chan<- error) {
	sc := bufio.NewScanner(h.r)
	sc.Buffer(make([]byte, 0, 64*1024), h.maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		cp := append([]byte(nil), line...)
		select {
		case out <- cp:
		case <-ctx.Done():
			return
		}
	}
	errc <- sc.Err()
}

func (h *Handler) handleLine(ctx context.Context, msgs []jsonrpc.AnyMessage, batch bool) {
	var out []*jsonrpc.Response
	for i := range msgs {
		res, err := h.eng.HandleMessage(ctx, &msgs[i])
		if err != nil {
			if errors.Is(err, engine.ErrClosed) {
				return
			}
			h.l.ErrorContext(ctx, "stdio.handle.fail", slog.String("err", err.Error()))
			if msgs[i].Kind() == jsonrpc.KindRequest {
				out = append(out, jsonrpc.NewErrorResponse(msgs[i].ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
			}
			continue
		}
		if res != nil {
			out = append(out, res)
		}
	}
	h.writeResponses(ctx, out, batch)
}

func (h *Handler) writeResponses(ctx context.Context, resps []*jsonrpc.Response, batch bool) {
	b, err := jsonrpc.EncodeResponses(resps, batch)
	if err != nil {
		h.l.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if b == nil {
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.w.Write(append(b, '\n')); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}

func containsRequest(msgs []jsonrpc.AnyMessage) bool {
	for i := range msgs {
		if msgs[i].Kind() == jsonrpc.KindRequest {
			return true
		}
	}
	return false
}
