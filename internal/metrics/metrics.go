// Package metrics exposes Prometheus collectors for the crawl and
// lifecycle pipelines.
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

var (
	pagesFetchedTotal          *prometheus.CounterVec
	jobsDiscoveredTotal        *prometheus.CounterVec
	searchRunsTotal            *prometheus.CounterVec
	crawlRunsTotal             *prometheus.CounterVec
	lifecycleActionsTotal      *prometheus.CounterVec
	jobsExpiredTotal           *prometheus.CounterVec
	jobsDeletedTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_pages_fetched_total",
				Help: "Total result pages fetched, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		jobsDiscoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_jobs_discovered_total",
				Help: "Total new job sightings, labeled by platform.",
			},
			[]string{"platform"},
		)

		searchRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_search_runs_total",
				Help: "Total finished search runs, labeled by platform and status.",
			},
			[]string{"platform", "status"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_crawl_runs_total",
				Help: "Total finished crawl runs, labeled by platform and status.",
			},
			[]string{"platform", "status"},
		)

		lifecycleActionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_lifecycle_actions_total",
				Help: "Lifecycle gate decisions, labeled by platform and action.",
			},
			[]string{"platform", "action"},
		)

		jobsExpiredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_jobs_expired_total",
				Help: "Jobs soft-expired by lifecycle maintenance, labeled by platform.",
			},
			[]string{"platform"},
		)

		jobsDeletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobradar_jobs_deleted_total",
				Help: "Jobs hard-deleted by lifecycle maintenance, labeled by platform.",
			},
			[]string{"platform"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetch increments the page counter. Outcome is one of ok,
// blocked or error.
func ObservePageFetch(platform, outcome string) {
	pagesFetchedTotal.WithLabelValues(platform, outcome).Inc()
}

// ObserveJobsDiscovered adds newly sighted jobs for a platform.
func ObserveJobsDiscovered(platform string, count int) {
	if count > 0 {
		jobsDiscoveredTotal.WithLabelValues(platform).Add(float64(count))
	}
}

// ObserveSearchRun increments the finished search-run counter.
func ObserveSearchRun(platform, status string) {
	searchRunsTotal.WithLabelValues(platform, status).Inc()
}

// ObserveCrawlRun increments the finished crawl-run counter.
func ObserveCrawlRun(platform, status string) {
	crawlRunsTotal.WithLabelValues(platform, status).Inc()
}

// ObserveLifecycleAction records one gate decision.
func ObserveLifecycleAction(platform, action string) {
	lifecycleActionsTotal.WithLabelValues(platform, action).Inc()
}

// ObserveJobsExpired adds soft-expired jobs for a platform.
func ObserveJobsExpired(platform string, count int64) {
	if count > 0 {
		jobsExpiredTotal.WithLabelValues(platform).Add(float64(count))
	}
}

// ObserveJobsDeleted adds hard-deleted jobs for a platform.
func ObserveJobsDeleted(platform string, count int64) {
	if count > 0 {
		jobsDeletedTotal.WithLabelValues(platform).Add(float64(count))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
