package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	rolloutsInitiatedTotal   *prometheus.CounterVec
	phaseAdvancesTotal       *prometheus.CounterVec
	communityFailuresTotal   *prometheus.CounterVec
	phaseDuration            *prometheus.HistogramVec
	batchesInFlight          prometheus.Gauge
	apiCostMicrosTotal       *prometheus.CounterVec
	advanceRequeuedTotal     prometheus.Counter
	recoveryEnqueuedTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rollout_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		rolloutsInitiatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "rollouts_initiated_total",
				Help:      "Total number of state rollouts initiated, by state.",
			},
			[]string{"state"},
		),
		phaseAdvancesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "phase_advances_total",
				Help:      "Total number of community phase advances, by phase reached.",
			},
			[]string{"phase"},
		),
		communityFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "community_failures_total",
				Help:      "Total number of community records marked failed, by phase and reason.",
			},
			[]string{"phase", "reason"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rollout_engine",
				Name:      "phase_duration_seconds",
				Help:      "External phase work duration in seconds grouped by phase.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"phase"},
		),
		batchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rollout_engine",
				Name:      "batches_in_flight",
				Help:      "Current number of batch advances being processed.",
			},
		),
		apiCostMicrosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "api_cost_micros_total",
				Help:      "Accumulated estimated external API cost in micro-USD, by api and sku tier.",
			},
			[]string{"api", "sku_tier"},
		),
		advanceRequeuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "advance_requeued_total",
				Help:      "Total number of advance messages requeued because the rollout lock was held.",
			},
		),
		recoveryEnqueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rollout_engine",
				Name:      "recovery_enqueued_total",
				Help:      "Total number of stale rollouts re-enqueued by the recovery scanner.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.rolloutsInitiatedTotal,
		m.phaseAdvancesTotal,
		m.communityFailuresTotal,
		m.phaseDuration,
		m.batchesInFlight,
		m.apiCostMicrosTotal,
		m.advanceRequeuedTotal,
		m.recoveryEnqueuedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncRolloutInitiated(state string) {
	if m == nil {
		return
	}
	m.rolloutsInitiatedTotal.WithLabelValues(normalizeLabel(state)).Inc()
}

func (m *Metrics) IncPhaseAdvance(phase string) {
	if m == nil {
		return
	}
	m.phaseAdvancesTotal.WithLabelValues(normalizeLabel(phase)).Inc()
}

func (m *Metrics) IncCommunityFailure(phase string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.communityFailuresTotal.WithLabelValues(normalizeLabel(phase), reasonLabel).Inc()
}

func (m *Metrics) ObservePhaseDuration(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.phaseDuration.WithLabelValues(normalizeLabel(phase)).Observe(seconds)
}

func (m *Metrics) IncBatchInFlight() {
	if m == nil {
		return
	}
	m.batchesInFlight.Inc()
}

func (m *Metrics) DecBatchInFlight() {
	if m == nil {
		return
	}
	m.batchesInFlight.Dec()
}

func (m *Metrics) AddAPICostMicros(api string, skuTier string, micros int64) {
	if m == nil || micros < 0 {
		return
	}
	m.apiCostMicrosTotal.WithLabelValues(normalizeLabel(api), normalizeLabel(skuTier)).Add(float64(micros))
}

func (m *Metrics) IncAdvanceRequeued() {
	if m == nil {
		return
	}
	m.advanceRequeuedTotal.Inc()
}

func (m *Metrics) IncRecoveryEnqueued() {
	if m == nil {
		return
	}
	m.recoveryEnqueuedTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
