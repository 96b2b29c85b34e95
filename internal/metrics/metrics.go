// Package metrics collects Prometheus metrics for the bridge and keeps the
// plain request counters reported by /health.
//
// Metric families:
//
//	scenebridge_http_requests_total{code}      every HTTP request by status class
//	scenebridge_http_request_duration_seconds  request latency
//	scenebridge_jobs_finished_total{category}  host jobs by outcome category
//	scenebridge_job_duration_seconds           time from submit to outcome
//	scenebridge_jobs_skipped_total{reason}     host turns that skipped stale work
//	scenebridge_jobs_evicted_total             admission evictions
//	scenebridge_tool_calls_total{tool,result}  tools/call by tool
//	scenebridge_sessions_opened_total
//	scenebridge_sessions_closed_total{reason}
//	scenebridge_session_messages_dropped_total
//	scenebridge_jobs_pending, scenebridge_sessions_active (gauges, sampled)
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/executor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scenebridge"

// Collector records metrics on its own registry so several servers can run
// in one process.
type Collector struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpLatency    prometheus.Histogram
	jobsFinished   *prometheus.CounterVec
	jobLatency     prometheus.Histogram
	jobsSkipped    *prometheus.CounterVec
	jobsEvicted    prometheus.Counter
	evictedAge     prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	sessionsOpened prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	dropped        prometheus.Counter

	totalRequests atomic.Int64
	errorCount    atomic.Int64
}

// NewCollector creates a collector with Go runtime and process collectors
// registered alongside the bridge metrics
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by status code",
		}, []string{"code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Host jobs by outcome category",
		}, []string{"category"}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job submission to outcome in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		jobsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_skipped_total",
			Help:      "Host turns that skipped a job, by reason (absent or cancelled)",
		}, []string{"reason"}),
		jobsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_evicted_total",
			Help:      "Jobs shed by admission control",
		}),
		evictedAge: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "jobs_evicted_age_seconds",
			Help:      "Time evicted jobs spent pending",
			Buckets:   prometheus.DefBuckets,
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "tools/call requests by tool and result",
		}, []string{"tool", "result"}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Streaming sessions opened",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Streaming sessions closed by reason",
		}, []string{"reason"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_messages_dropped_total",
			Help:      "Outbound messages dropped because a client fell behind",
		}),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.jobsFinished,
		c.jobLatency,
		c.jobsSkipped,
		c.jobsEvicted,
		c.evictedAge,
		c.toolCalls,
		c.sessionsOpened,
		c.sessionsClosed,
		c.dropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// WatchGauges registers sampled gauges for pending jobs and active sessions.
// Call once per collector.
func (c *Collector) WatchGauges(pending, sessions func() int) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_pending",
			Help:      "Jobs waiting for a host turn",
		}, func() float64 { return float64(pending()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open streaming sessions",
		}, func() float64 { return float64(sessions()) }),
	)
}

// RecordRequest counts one HTTP request. Status 500 and above counts as an
// error.
func (c *Collector) RecordRequest(status int, d time.Duration) {
	c.totalRequests.Add(1)
	if status >= http.StatusInternalServerError {
		c.errorCount.Add(1)
	}
	c.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(d.Seconds())
}

// TotalRequests returns the number of requests recorded
func (c *Collector) TotalRequests() int64 {
	return c.totalRequests.Load()
}

// ErrorCount returns the number of requests that ended with a 5xx status
func (c *Collector) ErrorCount() int64 {
	return c.errorCount.Load()
}

// JobFinished implements executor.Observer
func (c *Collector) JobFinished(category executor.Category, d time.Duration) {
	label := string(category)
	if category == executor.CategoryNone {
		label = "success"
	}
	c.jobsFinished.WithLabelValues(label).Inc()
	c.jobLatency.Observe(d.Seconds())
}

// JobSkipped implements executor.Observer
func (c *Collector) JobSkipped(reason string) {
	c.jobsSkipped.WithLabelValues(reason).Inc()
}

// Evicted implements admission.Observer
func (c *Collector) Evicted(_ string, age time.Duration) {
	c.jobsEvicted.Inc()
	c.evictedAge.Observe(age.Seconds())
}

// ToolCalled implements mcpserver.Observer
func (c *Collector) ToolCalled(tool string, failed bool, _ time.Duration) {
	result := "success"
	if failed {
		result = "error"
	}
	c.toolCalls.WithLabelValues(tool, result).Inc()
}

// SessionOpened implements session.Observer
func (c *Collector) SessionOpened() {
	c.sessionsOpened.Inc()
}

// SessionClosed implements session.Observer
func (c *Collector) SessionClosed(reason string) {
	c.sessionsClosed.WithLabelValues(reason).Inc()
}

// MessagesDropped implements session.Observer
func (c *Collector) MessagesDropped(n int) {
	c.dropped.Add(float64(n))
}
