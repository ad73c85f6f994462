// Package metrics holds the Prometheus collectors for usagepanel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Upstream provider calls.
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Usage fetch sections that failed and were downgraded to a note.
	SectionFailuresTotal *prometheus.CounterVec

	// Usage cache lookups by result: hit, miss, forced.
	CacheLookupsTotal *prometheus.CounterVec
	CacheRefreshTotal *prometheus.CounterVec

	// Vault operations by op and status.
	VaultOperationsTotal *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usagepanel_upstream_requests_total",
			Help: "Total number of requests sent to provider APIs.",
		}, []string{"provider", "code", "method"}),

		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usagepanel_upstream_request_duration_seconds",
			Help:    "Provider API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "code", "method"}),

		SectionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usagepanel_fetch_section_failures_total",
			Help: "Usage fetch sections that failed and were omitted from the snapshot.",
		}, []string{"provider", "section"}),

		CacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usagepanel_cache_lookups_total",
			Help: "Usage cache lookups by result.",
		}, []string{"provider", "result"}),

		CacheRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usagepanel_cache_background_refresh_total",
			Help: "Background cache refreshes by status.",
		}, []string{"provider", "status"}),

		VaultOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usagepanel_vault_operations_total",
			Help: "Credential vault operations by op and status.",
		}, []string{"op", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.SectionFailuresTotal,
		m.CacheLookupsTotal,
		m.CacheRefreshTotal,
		m.VaultOperationsTotal,
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InstrumentTransport wraps next so every request is counted and timed under
// the provider label. A nil receiver returns next unchanged.
func (m *Metrics) InstrumentTransport(provider string, next http.RoundTripper) http.RoundTripper {
	if m == nil {
		return next
	}
	labels := prometheus.Labels{"provider": provider}
	counter := m.UpstreamRequestsTotal.MustCurryWith(labels)
	duration := m.UpstreamRequestDuration.MustCurryWith(labels)

	return promhttp.InstrumentRoundTripperCounter(counter,
		promhttp.InstrumentRoundTripperDuration(duration, next))
}

// SectionFailed counts a downgraded usage section. Safe on a nil receiver.
func (m *Metrics) SectionFailed(provider, section string) {
	if m == nil {
		return
	}
	m.SectionFailuresTotal.WithLabelValues(provider, section).Inc()
}

// CacheLookup counts a usage cache lookup. Safe on a nil receiver.
func (m *Metrics) CacheLookup(provider, result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(provider, result).Inc()
}

// CacheRefresh counts a background refresh. Safe on a nil receiver.
func (m *Metrics) CacheRefresh(provider, status string) {
	if m == nil {
		return
	}
	m.CacheRefreshTotal.WithLabelValues(provider, status).Inc()
}

// VaultOp counts a vault operation. Safe on a nil receiver.
func (m *Metrics) VaultOp(op, status string) {
	if m == nil {
		return
	}
	m.VaultOperationsTotal.WithLabelValues(op, status).Inc()
}
