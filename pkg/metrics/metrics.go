// Package metrics holds the Prometheus collectors of the proxy. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openapi_to_mcp"

// Call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeHTTPErr = "http_error"
	OutcomeFailure = "failure"
)

// Metrics groups the collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	toolCalls    *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	tokenFetches *prometheus.CounterVec
	catalogTools prometheus.Gauge
}

// New registers the collectors, plus the Go and process collectors, on a new
// registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of proxied tool calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		tokenFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_fetches_total",
			Help:      "OAuth2 token endpoint calls by grant type and outcome.",
		}, []string{"grant_type", "outcome"}),
		catalogTools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_tools",
			Help:      "Number of tools in the catalog.",
		}),
	}
	m.registry.MustRegister(
		m.toolCalls,
		m.callDuration,
		m.tokenFetches,
		m.catalogTools,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveToolCall records one tool call.
func (m *Metrics) ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.callDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveTokenFetch records one token endpoint call.
func (m *Metrics) ObserveTokenFetch(grantType, outcome string) {
	if m == nil {
		return
	}
	m.tokenFetches.WithLabelValues(grantType, outcome).Inc()
}

// SetCatalogTools records the catalog size.
func (m *Metrics) SetCatalogTools(n int) {
	if m == nil {
		return
	}
	m.catalogTools.Set(float64(n))
}
