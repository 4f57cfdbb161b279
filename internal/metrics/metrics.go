package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tp_monitor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tp_monitor",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Scheduler / discovery metrics ──────────────────────────────────────

var (
	SchedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Total scheduler ticks by outcome.",
	}, []string{"status"})

	WatchedTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tp_monitor",
		Subsystem: "scheduler",
		Name:      "watched_tokens",
		Help:      "Number of token IDs discovered on the last tick.",
	})
)

// ── Price fetch metrics ────────────────────────────────────────────────

var (
	ProviderCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "fetch",
		Name:      "provider_calls_total",
		Help:      "Total market-data provider calls by outcome.",
	}, []string{"status"})

	ProviderCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tp_monitor",
		Subsystem: "fetch",
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of a single provider chunk call in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "fetch",
		Name:      "cache_hits_total",
		Help:      "Price cache hits within the freshness window.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "fetch",
		Name:      "cache_misses_total",
		Help:      "Price cache misses (absent or stale entries).",
	})
)

// ── Alert pipeline metrics ─────────────────────────────────────────────

var (
	ConditionsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "alerts",
		Name:      "conditions_fired_total",
		Help:      "Conditions that newly held and were enqueued for notification.",
	}, []string{"kind", "source"})

	LockContendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "alerts",
		Name:      "lock_contended_total",
		Help:      "Conditions suppressed because the dedup lock was already held.",
	}, []string{"kind"})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "alerts",
		Name:      "emails_sent_total",
		Help:      "Alert emails successfully delivered.",
	}, []string{"kind"})

	EmailsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "alerts",
		Name:      "emails_failed_total",
		Help:      "Alert email delivery failures.",
	}, []string{"kind"})

	EmailsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "alerts",
		Name:      "emails_suppressed_total",
		Help:      "Email jobs dropped because the sent marker was already set.",
	}, []string{"kind"})
)

// ── Queue metrics ──────────────────────────────────────────────────────

var (
	JobsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "queue",
		Name:      "jobs_published_total",
		Help:      "Jobs published per topic.",
	}, []string{"topic"})

	JobsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tp_monitor",
		Subsystem: "queue",
		Name:      "jobs_consumed_total",
		Help:      "Jobs consumed per topic by outcome.",
	}, []string{"topic", "status"})
)
