// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. Each instance owns its registry so tests can
// create fresh ones.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	SessionOutcomes *prometheus.CounterVec
	OutcomesWritten *prometheus.CounterVec
	OutcomesDropped *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exam_sessions_active",
			Help: "Exam sessions currently hosted by this gateway",
		}),
		SessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_session_events_total",
				Help: "Exam session events by type",
			},
			[]string{"type"},
		),
		SessionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_session_outcomes_total",
				Help: "Finished exam attempts by terminal status and result availability",
			},
			[]string{"status", "result"},
		),
		OutcomesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outcome_journal_writes_total",
				Help: "Outcome journal rows written by mode",
			},
			[]string{"mode"},
		),
		OutcomesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outcome_journal_dropped_total",
				Help: "Outcomes abandoned before reaching the journal, by reason",
			},
			[]string{"reason"},
		),
	}
	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.ActiveSessions,
		m.SessionEvents,
		m.SessionOutcomes,
		m.OutcomesWritten,
		m.OutcomesDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, endpoint).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
