package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/respondio-mcp/auth"
	"github.com/ggoodman/respondio-mcp/config"
	"github.com/ggoodman/respondio-mcp/internal/engine"
	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/respondio"
	"github.com/ggoodman/respondio-mcp/streaminghttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ShutdownTimeout bounds the graceful shutdown that follows cancellation of
// the context passed to Run.
const ShutdownTimeout = 10 * time.Second

// Gateway is the HTTP front of the server. It owns the session router and
// stops the upstream manager on shutdown.
type Gateway struct {
	cfg  *config.Config
	opts *options

	tools    *mcpservice.Server
	sessions *streaminghttp.Handler
	handler  http.Handler
	srv      *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New assembles a Gateway from cfg. Nothing is bound until Run or Serve.
func New(cfg *config.Config, opts ...Option) *Gateway {
	o := resolveOptions(cfg, opts)
	g := &Gateway{cfg: cfg, opts: o}

	resolver := &respondio.ClientResolver{
		Manager:    o.manager,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		PerRequest: true,
	}
	g.tools = newToolServer(cfg, resolver, o)
	g.sessions = streaminghttp.New(g.newEngine,
		streaminghttp.WithLogger(o.log),
		streaminghttp.WithMetrics(o.metrics),
		streaminghttp.WithIdleTimeout(cfg.SessionIdleTimeout),
	)

	verifier := auth.NewTokenVerifier(auth.WithVerifierLogger(o.log))
	protected := verifier.Middleware(g.sessions)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{}))
	mux.Handle(cfg.Path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Preflight requests carry no credentials.
		if r.Method == http.MethodOptions {
			g.sessions.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))
	g.handler = metricsMiddleware(o.metrics)(mux)

	g.srv = &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(o.log.Handler(), slog.LevelWarn),
	}
	return g
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Sessions returns the number of registered sessions.
func (g *Gateway) Sessions() int { return g.sessions.Len() }

// newEngine binds a fresh protocol engine to the upstream client for the
// credential of the initializing request, falling back to the configured key.
func (g *Gateway) newEngine(ctx context.Context) (*engine.Engine, error) {
	opts := []engine.EngineOption{engine.WithLogger(g.opts.log)}

	cred, ok := auth.CredentialFrom(ctx)
	if !ok {
		cred = g.cfg.APIKey
	}
	if cred != "" {
		client, err := g.opts.manager.GetClient(g.cfg.BaseURL, cred)
		if err != nil {
			return nil, fmt.Errorf("upstream client: %w", err)
		}
		opts = append(opts, engine.WithToolContext(func(ctx context.Context) context.Context {
			return respondio.WithClient(ctx, client)
		}))
	}
	return engine.New(g.tools, opts...), nil
}

// Run binds the configured port and serves until ctx is cancelled. A bind
// failure is returned as is.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.Addr())
	if err != nil {
		g.opts.manager.Stop()
		return fmt.Errorf("listen on %s: %w", g.cfg.Addr(), err)
	}
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled and then shuts the
// gateway down within ShutdownTimeout.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	log := g.opts.log
	log.Info("gateway.start", slog.String("addr", ln.Addr().String()), slog.String("path", g.cfg.Path))

	errc := make(chan error, 1)
	go func() { errc <- g.srv.Serve(ln) }()

	select {
	case err := <-errc:
		_ = g.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := g.Shutdown(sctx)
	<-errc
	return err
}

// Shutdown closes every session, stops the upstream manager and then the
// HTTP server. Only the first call does any work.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		log := g.opts.log
		start := time.Now()
		log.Info("gateway.shutdown.start", slog.Int("sessions", g.sessions.Len()))

		if err := g.sessions.Shutdown(ctx); err != nil {
			log.Error("gateway.shutdown.sessions.fail", slog.String("err", err.Error()))
		}
		g.opts.manager.Stop()
		if err := g.srv.Shutdown(ctx); err != nil {
			g.shutdownErr = fmt.Errorf("http shutdown: %w", err)
		}

		log.Info("gateway.shutdown.done", slog.Duration("dur", time.Since(start)))
	})
	return g.shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
