package streaminghttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ggoodman/respondio-mcp/internal/engine"
	"github.com/ggoodman/respondio-mcp/internal/jsonrpc"
	"github.com/ggoodman/respondio-mcp/mcp"
	"github.com/ggoodman/respondio-mcp/sessions"
	"github.com/google/uuid"
)

var (
	errTransportClosed = errors.New("transport closed")
	errHandlerPanic    = errors.New("handler panic")
)

// Close reasons, also used as the sessions_closed_total label.
const (
	closeReasonDelete    = "delete"
	closeReasonIdle      = "idle"
	closeReasonShutdown  = "shutdown"
	closeReasonHandshake = "handshake"
	closeReasonError     = "error"
)

// transportContext is the per-session half of the router. It owns exactly one
// engine and serializes the requests it forwards to it.
type transportContext struct {
	h   *Handler
	eng *engine.Engine

	// sem is a single slot semaphore; holding it means a request is being
	// served for this session.
	sem chan struct{}

	mu         sync.Mutex
	id         string
	state      sessions.State
	lastActive time.Time

	closeOnce sync.Once
}

var _ sessions.Session = (*transportContext)(nil)

func newTransportContext(h *Handler, eng *engine.Engine) *transportContext {
	return &transportContext{
		h:          h,
		eng:        eng,
		sem:        make(chan struct{}, 1),
		state:      sessions.StatePending,
		lastActive: h.now(),
	}
}

func (tc *transportContext) SessionID() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.id
}

func (tc *transportContext) State() sessions.State {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.state
}

func (tc *transportContext) touch() {
	tc.mu.Lock()
	tc.lastActive = tc.h.now()
	tc.mu.Unlock()
}

// idleSince reports when the context was last used and whether a request is
// currently being served.
func (tc *transportContext) idleSince() (time.Time, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.lastActive, len(tc.sem) > 0
}

// acquire waits for the session's slot or gives up with ctx.
func (tc *transportContext) acquire(ctx context.Context) error {
	select {
	case tc.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tc *transportContext) release() {
	<-tc.sem
}

// handle forwards msgs to the engine in order and collects the responses.
// Bodies holding requests are serialized against other requests for the same
// session; notification-only bodies are not, so a cancellation can reach a
// request that is still running.
func (tc *transportContext) handle(ctx context.Context, msgs []jsonrpc.AnyMessage) (out []*jsonrpc.Response, err error) {
	if containsRequest(msgs) {
		if err := tc.acquire(ctx); err != nil {
			return nil, err
		}
		defer tc.release()
	}
	defer func() {
		if v := recover(); v != nil {
			tc.h.log.ErrorContext(ctx, "session.request.panic", slog.Any("panic", v), slog.String("stack", string(debug.Stack())))
			out, err = nil, fmt.Errorf("%w: %v", errHandlerPanic, v)
		}
	}()

	if tc.State() == sessions.StateClosed {
		return nil, errTransportClosed
	}
	tc.touch()
	defer tc.touch()

	for i := range msgs {
		res, err := tc.eng.HandleMessage(ctx, &msgs[i])
		if err != nil {
			if errors.Is(err, engine.ErrClosed) {
				return nil, errTransportClosed
			}
			return nil, err
		}
		if res != nil {
			out = append(out, res)
		}
	}
	return out, nil
}

// activate moves a pending context to active: it mints the session id and
// registers the context. It is a no-op for contexts that are already active.
func (tc *transportContext) activate() (string, error) {
	tc.mu.Lock()
	switch tc.state {
	case sessions.StateActive:
		id := tc.id
		tc.mu.Unlock()
		return id, nil
	case sessions.StateClosed:
		tc.mu.Unlock()
		return "", errTransportClosed
	}
	tc.id = uuid.NewString()
	tc.state = sessions.StateActive
	id := tc.id
	tc.mu.Unlock()

	if err := tc.h.registry.Register(tc); err != nil {
		tc.mu.Lock()
		tc.state = sessions.StatePending
		tc.id = ""
		tc.mu.Unlock()
		return "", fmt.Errorf("register session: %w", err)
	}
	tc.h.syncSessionGauge()
	return id, nil
}

// close is the single exit path for a context. It removes the registry entry
// only while it still maps to tc and then closes the engine in the
// background.
func (tc *transportContext) close(reason string) {
	tc.closeOnce.Do(func() {
		tc.mu.Lock()
		id := tc.id
		wasActive := tc.state == sessions.StateActive
		tc.state = sessions.StateClosed
		tc.mu.Unlock()

		if id != "" {
			tc.h.registry.RemoveIfSame(id, tc)
			tc.h.syncSessionGauge()
		}
		if wasActive {
			tc.h.metrics.SessionsClosed.WithLabelValues(reason).Inc()
		}
		tc.h.log.Info("session.close", slog.String("session_id", id), slog.String("reason", reason))

		go func() {
			if err := tc.eng.Close(); err != nil {
				tc.h.log.Error("session.engine.close.fail", slog.String("session_id", id), slog.String("err", err.Error()))
			}
		}()
	})
}

func containsRequest(msgs []jsonrpc.AnyMessage) bool {
	for i := range msgs {
		if msgs[i].Kind() == jsonrpc.KindRequest {
			return true
		}
	}
	return false
}

func findInitialize(msgs []jsonrpc.AnyMessage) bool {
	for i := range msgs {
		if msgs[i].IsRequestFor(mcp.MethodInitialize) {
			return true
		}
	}
	return false
}
