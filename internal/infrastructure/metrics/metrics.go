package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reelsync"

// Metrics holds the collectors used by the sync components. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	changesAppended   *prometheus.CounterVec
	appendFailures    *prometheus.CounterVec
	changesDispatched *prometheus.CounterVec
	editConflicts     *prometheus.CounterVec
	presencePublished prometheus.Counter
	presenceFailures  prometheus.Counter
	activeSessions    prometheus.Gauge
	feedDropped       *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		changesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_appended_total",
			Help:      "Change records appended to the log.",
		}, []string{"change_type"}),
		appendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_append_failures_total",
			Help:      "Change log appends that failed.",
		}, []string{"reason"}),
		changesDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_dispatched_total",
			Help:      "Remote change records dispatched to local effects.",
		}, []string{"change_type", "route"}),
		editConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_conflicts_total",
			Help:      "Targeted updates whose clock was concurrent with or older than the applied one.",
		}, []string{"ordering"}),
		presencePublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_heartbeats_total",
			Help:      "Presence heartbeats written.",
		}),
		presenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_heartbeat_failures_total",
			Help:      "Presence heartbeats that failed.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_sessions_active",
			Help:      "Currently connected sync sessions.",
		}),
		feedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Live feed deliveries skipped because a subscriber's buffer was full.",
		}, []string{"feed"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.changesAppended,
		m.appendFailures,
		m.changesDispatched,
		m.editConflicts,
		m.presencePublished,
		m.presenceFailures,
		m.activeSessions,
		m.feedDropped,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ChangeAppended(changeType string) {
	if m == nil {
		return
	}
	m.changesAppended.WithLabelValues(changeType).Inc()
}

func (m *Metrics) AppendFailed(reason string) {
	if m == nil {
		return
	}
	m.appendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ChangeDispatched(changeType, route string) {
	if m == nil {
		return
	}
	m.changesDispatched.WithLabelValues(changeType, route).Inc()
}

func (m *Metrics) EditConflict(ordering string) {
	if m == nil {
		return
	}
	m.editConflicts.WithLabelValues(ordering).Inc()
}

func (m *Metrics) PresencePublished() {
	if m == nil {
		return
	}
	m.presencePublished.Inc()
}

func (m *Metrics) PresenceFailed() {
	if m == nil {
		return
	}
	m.presenceFailures.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// FeedDropped counts a delivery skipped on the named feed ("changes" or "presence").
func (m *Metrics) FeedDropped(feed string) {
	if m == nil {
		return
	}
	m.feedDropped.WithLabelValues(feed).Inc()
}

func (m *Metrics) ObserveRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, status).Inc()
	m.httpDuration.WithLabelValues(method).Observe(seconds)
}
