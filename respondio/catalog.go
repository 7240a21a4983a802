package respondio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/respondio-mcp/internal/metrics"
	"github.com/ggoodman/respondio-mcp/mcp"
	"github.com/ggoodman/respondio-mcp/mcpservice"
	"github.com/ggoodman/respondio-mcp/upstream"
)

// NoDataText is returned when the API answers without a body.
const NoDataText = "No data returned from API."

const (
	defaultLimit    = 10
	defaultTimezone = "UTC"
)

// Option configures a Catalog.
type Option func(*Catalog)

// WithIdentifierPolicy overrides DefaultIdentifierPolicy.
func WithIdentifierPolicy(p IdentifierPolicy) Option {
	return func(c *Catalog) { c.policy = p }
}

// WithDebug appends the error chain to failed tool results.
func WithDebug(debug bool) Option {
	return func(c *Catalog) { c.debug = debug }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// WithMetrics counts tool calls by outcome.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// Catalog builds the Respond.io tool set.
type Catalog struct {
	resolver *ClientResolver
	policy   IdentifierPolicy
	debug    bool
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewCatalog returns a Catalog that resolves clients through resolver.
func NewCatalog(resolver *ClientResolver, opts ...Option) *Catalog {
	c := &Catalog{
		resolver: resolver,
		policy:   DefaultIdentifierPolicy(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	return c
}

// Tools returns every tool in catalog order.
func (c *Catalog) Tools() []mcpservice.StaticTool {
	var tools []mcpservice.StaticTool
	tools = append(tools, c.contactTools()...)
	tools = append(tools, c.messagingTools()...)
	tools = append(tools, c.conversationTools()...)
	tools = append(tools, c.commentTools()...)
	tools = append(tools, c.workspaceTools()...)
	return tools
}

// Container returns the tools wrapped in a ToolsContainer, ready to serve as
// the tools capability of an mcpservice.Server.
func (c *Catalog) Container() *mcpservice.ToolsContainer {
	return mcpservice.NewToolsContainer(c.Tools()...)
}

// apiCall is one upstream request made on behalf of a tool.
type apiCall func(ctx context.Context, client *upstream.Client) (json.RawMessage, error)

// invoke resolves a client, runs call and renders its outcome into w. Upstream
// failures become error results. Only writer failures are returned.
func (c *Catalog) invoke(ctx context.Context, w mcpservice.ToolResponseWriter, tool string, call apiCall) error {
	start := time.Now()
	client, err := c.resolver.Resolve(ctx)
	if err == nil {
		var body json.RawMessage
		body, err = call(ctx, client)
		if err == nil {
			c.metrics.ToolCalls.WithLabelValues(tool, "ok").Inc()
			c.log.DebugContext(ctx, "tool.call.ok", slog.String("tool", tool), slog.Duration("dur", time.Since(start)))
			return w.AppendText(formatBody(body))
		}
	}

	c.metrics.ToolCalls.WithLabelValues(tool, "error").Inc()
	c.log.WarnContext(ctx, "tool.call.fail", slog.String("tool", tool), slog.Duration("dur", time.Since(start)), slog.String("err", err.Error()))
	return c.fail(w, err)
}

// reject reports an argument problem detected by the handler itself.
func (c *Catalog) reject(w mcpservice.ToolResponseWriter, err error) error {
	w.SetError(true)
	return w.AppendText(err.Error())
}

func (c *Catalog) fail(w mcpservice.ToolResponseWriter, err error) error {
	msg := upstream.Describe(err)
	if c.debug {
		msg += "\n" + errorChain(err)
	}
	w.SetError(true)
	return w.AppendText(msg)
}

func formatBody(body json.RawMessage) string {
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return NoDataText
	}
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}

// errorChain renders each wrapped error with its concrete type.
func errorChain(err error) string {
	var b strings.Builder
	b.WriteString("Details:")
	for depth := 0; err != nil && depth < 8; depth++ {
		fmt.Fprintf(&b, "\n  %T: %v", err, err)
		err = errors.Unwrap(err)
	}
	return b.String()
}

// pageArgs are shared by every cursor-paginated list tool.
type pageArgs struct {
	Limit    int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,default=10" jsonschema_description:"Number of items to return (1-100)" validate:"omitempty,min=1,max=100"`
	CursorID *int64 `json:"cursorId,omitempty" jsonschema_description:"Cursor ID returned by the previous page"`
}

func (a pageArgs) query() url.Values {
	limit := a.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if a.CursorID != nil && *a.CursorID != 0 {
		q.Set("cursorId", strconv.FormatInt(*a.CursorID, 10))
	}
	return q
}

var (
	readOnly    = mcpservice.WithToolAnnotations(mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true})
	destructive = mcpservice.WithToolAnnotations(mcp.ToolAnnotations{DestructiveHint: true, IdempotentHint: true})
)
