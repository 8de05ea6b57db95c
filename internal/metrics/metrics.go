// Package metrics exposes Prometheus collectors for the result crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeMiss    = "miss"
	OutcomeSkipped = "skipped"
	OutcomeBlocked = "blocked"
	OutcomeBrowser = "needs_browser"
)

var (
	strategyAttemptsTotal      *prometheus.CounterVec
	acquisitionDurationSeconds *prometheus.HistogramVec
	resultsTotal               *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	pollCyclesTotal            prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
	outboxPending              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		strategyAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_strategy_attempts_total",
				Help: "Acquisition attempts, labeled by strategy, game type, and outcome.",
			},
			[]string{"strategy", "game_type", "outcome"},
		)

		acquisitionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_acquisition_duration_seconds",
				Help:    "Latency of a full acquisition across all strategies.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"game_type", "outcome"},
		)

		resultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_results_total",
				Help: "Candidates seen by the change detector, labeled by game type and verdict.",
			},
			[]string{"game_type", "verdict"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_notifications_total",
				Help: "Notification deliveries, labeled by channel, kind, and outcome.",
			},
			[]string{"channel", "kind", "outcome"},
		)

		pollCyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_poll_cycles_total",
				Help: "Completed poll loop cycles.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 20},
			},
			[]string{"host"},
		)

		outboxPending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_outbox_pending",
				Help: "Result notifications waiting in the async delivery queue.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStrategyAttempt counts one strategy attempt.
func ObserveStrategyAttempt(strategy, gameType, outcome string) {
	Init()
	strategyAttemptsTotal.WithLabelValues(strategy, gameType, outcome).Inc()
}

// ObserveAcquisition records how long a full acquisition took.
func ObserveAcquisition(gameType, outcome string, duration time.Duration) {
	Init()
	acquisitionDurationSeconds.WithLabelValues(gameType, outcome).Observe(duration.Seconds())
}

// ObserveResult counts a change-detector verdict ("new" or "duplicate").
func ObserveResult(gameType, verdict string) {
	Init()
	resultsTotal.WithLabelValues(gameType, verdict).Inc()
}

// ObserveNotification counts one channel delivery.
func ObserveNotification(channel, kind, outcome string) {
	Init()
	notificationsTotal.WithLabelValues(channel, kind, outcome).Inc()
}

// ObservePollCycle counts a completed poll cycle.
func ObservePollCycle() {
	Init()
	pollCyclesTotal.Inc()
}

// ObserveRateLimitDelay records a rate limiter wait.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveOutboxDepth records how many notifications are queued.
func ObserveOutboxDepth(n int) {
	Init()
	outboxPending.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
