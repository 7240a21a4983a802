package server

import (
	"io"
	"log/slog"

	"github.com/ggoodman/respondio-mcp/config"
	"github.com/ggoodman/respondio-mcp/internal/logctx"
	"github.com/ggoodman/respondio-mcp/internal/metrics"
	"github.com/ggoodman/respondio-mcp/mcp"
	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/respondio"
	"github.com/ggoodman/respondio-mcp/upstream"
	"github.com/prometheus/client_golang/prometheus"
)

// Server identity reported in the initialize result.
const (
	Name  = "respondio-mcp"
	Title = "Respond.io MCP Server"
)

// Version is overridden at link time for release builds.
var Version = "1.0.1"

// Option configures a Gateway or RunStdio.
type Option func(*options)

type options struct {
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	manager  *upstream.Manager
	stdin    io.Reader
	stdout   io.Writer
}

// WithLogger sets the logger. It is wrapped so context attributes are added.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegistry sets the Prometheus registry exposed on /metrics. When no
// Metrics are supplied the gateway registers its own set with it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithMetrics shares an existing metric set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithManager injects the upstream client manager. The caller keeps
// ownership, although Shutdown stops it as well.
func WithManager(m *upstream.Manager) Option {
	return func(o *options) { o.manager = m }
}

// WithStdio replaces os.Stdin and os.Stdout for RunStdio.
func WithStdio(r io.Reader, w io.Writer) Option {
	return func(o *options) {
		o.stdin = r
		o.stdout = w
	}
}

func resolveOptions(cfg *config.Config, opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	o.log = logctx.Wrap(o.log)
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.metrics == nil {
		o.metrics = metrics.New(o.registry)
	}
	if o.manager == nil {
		o.manager = NewManager(cfg, o.log, o.metrics)
	}
	return o
}

// NewManager builds an upstream client manager with the retry, timeout and
// health policy from cfg.
func NewManager(cfg *config.Config, log *slog.Logger, mx *metrics.Metrics) *upstream.Manager {
	return upstream.NewManager(
		upstream.WithManagerLogger(log),
		upstream.WithMetrics(mx),
		upstream.WithHealthCheckInterval(cfg.HealthCheckInterval),
		upstream.WithClientOptions(
			upstream.WithTimeout(cfg.UpstreamTimeout),
			upstream.WithMaxRetries(cfg.UpstreamMaxRetries),
			upstream.WithRetryDelay(cfg.UpstreamRetryDelay),
			upstream.WithClientLogger(log),
		),
	)
}

func newToolServer(cfg *config.Config, resolver *respondio.ClientResolver, o *options) *mcpservice.Server {
	catalog := respondio.NewCatalog(resolver,
		respondio.WithIdentifierPolicy(respondio.IdentifierPolicy{NumericIDMaxDigits: cfg.NumericIDMaxDigits}),
		respondio.WithDebug(cfg.Debug),
		respondio.WithLogger(o.log),
		respondio.WithMetrics(o.metrics),
	)
	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: Name, Title: Title, Version: Version}),
		mcpservice.WithToolsCapability(catalog.Container()),
	)
}
