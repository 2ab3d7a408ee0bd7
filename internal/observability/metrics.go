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

// Metrics stores Prometheus collectors used by API and dispatch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	tokensDeliveredTotal prometheus.Counter
	tokensFailedTotal    *prometheus.CounterVec
	tokensEvictedTotal   *prometheus.CounterVec
	batchSendDuration    *prometheus.HistogramVec
	batchesInflight      prometheus.Gauge
	jobsTotal            *prometheus.CounterVec
	batchRetriesTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fanout_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fanout_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		tokensDeliveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fanout_engine",
				Name:      "tokens_delivered_total",
				Help:      "Total number of per-token deliveries confirmed by the gateway.",
			},
		),
		tokensFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fanout_engine",
				Name:      "tokens_failed_total",
				Help:      "Total number of per-token delivery failures by reason code.",
			},
			[]string{"reason"},
		),
		tokensEvictedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fanout_engine",
				Name:      "tokens_evicted_total",
				Help:      "Total number of tokens evicted after a permanent gateway failure.",
			},
			[]string{"reason"},
		),
		batchSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fanout_engine",
				Name:      "batch_send_duration_seconds",
				Help:      "Gateway batch send duration in seconds by attempt number.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"attempt"},
		),
		batchesInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fanout_engine",
				Name:      "batches_inflight",
				Help:      "Current number of gateway batch sends in flight.",
			},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fanout_engine",
				Name:      "jobs_total",
				Help:      "Total number of notification jobs by outcome (scheduled, superseded, canceled, fired).",
			},
			[]string{"outcome"},
		),
		batchRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fanout_engine",
				Name:      "batch_retries_total",
				Help:      "Total number of second-attempt batch sends.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.tokensDeliveredTotal,
		m.tokensFailedTotal,
		m.tokensEvictedTotal,
		m.batchSendDuration,
		m.batchesInflight,
		m.jobsTotal,
		m.batchRetriesTotal,
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

func (m *Metrics) AddTokensDelivered(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensDeliveredTotal.Add(float64(count))
}

func (m *Metrics) AddTokensFailed(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.tokensFailedTotal.WithLabelValues(normalizeReason(reason)).Add(float64(count))
}

func (m *Metrics) IncTokenEvicted(reason string) {
	if m == nil {
		return
	}
	m.tokensEvictedTotal.WithLabelValues(normalizeReason(reason)).Inc()
}

func (m *Metrics) ObserveBatchSendDuration(attempt int, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.batchSendDuration.WithLabelValues(strconv.Itoa(attempt)).Observe(seconds)
}

func (m *Metrics) IncBatchInflight() {
	if m == nil {
		return
	}
	m.batchesInflight.Inc()
}

func (m *Metrics) DecBatchInflight() {
	if m == nil {
		return
	}
	m.batchesInflight.Dec()
}

func (m *Metrics) IncJob(outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(normalizeReason(outcome)).Inc()
}

func (m *Metrics) IncBatchRetry() {
	if m == nil {
		return
	}
	m.batchRetriesTotal.Inc()
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

func normalizeReason(reason string) string {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
