// Package metrics defines the Prometheus instruments shared by the gateway,
// the session router and the upstream client manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "respondio_mcp"

// Metrics holds all Prometheus metrics for the server.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ActiveSessions      prometheus.Gauge
	SessionsClosed      *prometheus.CounterVec
	ToolCalls           *prometheus.CounterVec
	UpstreamClients     prometheus.Gauge
	UpstreamProbes      *prometheus.CounterVec
	UpstreamRecreations prometheus.Counter
}

// New creates all metrics and registers them with reg. A nil reg yields
// working but unregistered collectors, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests on the MCP endpoint",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of registered sessions",
			},
		),
		SessionsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_closed_total",
				Help:      "Sessions closed, by reason",
			},
			[]string{"reason"}, // delete/idle/shutdown/handshake/error
		),
		ToolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool invocations, by tool and outcome",
			},
			[]string{"tool", "result"}, // result=ok/error
		),
		UpstreamClients: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_clients",
				Help:      "Number of cached upstream API clients",
			},
		),
		UpstreamProbes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_probes_total",
				Help:      "Passive upstream health probes, by outcome",
			},
			[]string{"result"}, // result=ok/error
		),
		UpstreamRecreations: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_recreations_total",
				Help:      "Upstream clients discarded and rebuilt after sustained failure",
			},
		),
	}
}

// StatusLabel converts an HTTP status code to the status label value.
func StatusLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
