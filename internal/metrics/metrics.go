package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-IP limiter",
		},
	)

	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasktimer_completion_events_total",
			Help: "Completion ledger events by type",
		},
		[]string{"type"},
	)
	AchievementsUnlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasktimer_achievements_unlocked_total",
			Help: "Earned achievement rows inserted",
		},
	)
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasktimer_jobs_processed_total",
			Help: "Background jobs by type and result",
		},
		[]string{"type", "result"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			RateLimited,
			CompletionsTotal,
			AchievementsUnlocked,
			JobsProcessed,
		)
	})
}
