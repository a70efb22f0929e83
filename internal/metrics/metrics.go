// package metrics defines the Prometheus instruments for the queue, providers and orchestrator.
package metrics

import (
	"net/http"
	"time"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "setlistsync"

var (
	// Queue
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Enqueue calls by entity type, including ones folded into an existing job",
		},
		[]string{"entity_type"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Claimed jobs by entity type and outcome",
		},
		[]string{"entity_type", "outcome"}, // "completed", "retried", "failed"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Handler run time per claimed job",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity_type"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_jobs",
			Help:      "Jobs in the queue by status",
		},
		[]string{"status"},
	)

	JobsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reclaimed_total",
			Help:      "Processing jobs returned to the pool by the stuck-job sweep",
		},
	)

	// Providers
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Outbound provider calls by provider and result class",
		},
		[]string{"provider", "result"}, // "ok", "4xx", "5xx", "error", "open"
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Outbound provider call latency, excluding rate-limit waits",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	ProviderBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_breaker_open",
			Help:      "1 while the provider circuit breaker is open",
		},
		[]string{"provider"},
	)

	// Orchestrator
	OrchestratorTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrator_tasks_total",
			Help:      "Orchestrated tasks by operation and final status",
		},
		[]string{"operation", "status"},
	)

	// Votes
	VotesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote attempts by target kind and whether they counted",
		},
		[]string{"target", "result"}, // "counted", "duplicate"
	)
)

// RecordEnqueue counts one successful enqueue call.
func RecordEnqueue(entityType models.EntityType) {
	JobsEnqueued.WithLabelValues(string(entityType)).Inc()
}

// RecordJob records the outcome and duration of one processed job.
func RecordJob(entityType models.EntityType, outcome string, duration time.Duration) {
	JobsProcessed.WithLabelValues(string(entityType), outcome).Inc()
	JobDuration.WithLabelValues(string(entityType)).Observe(duration.Seconds())
}

// RecordProviderCall classifies one provider response. status 0 means a transport error.
func RecordProviderCall(provider string, status int, duration time.Duration) {
	result := "ok"
	switch {
	case status == 0:
		result = "error"
	case status >= 500:
		result = "5xx"
	case status >= 400:
		result = "4xx"
	}
	ProviderRequests.WithLabelValues(provider, result).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordBreakerRejection counts a call refused by an open breaker.
func RecordBreakerRejection(provider string) {
	ProviderRequests.WithLabelValues(provider, "open").Inc()
}

// SetBreakerOpen flips the breaker gauge for provider.
func SetBreakerOpen(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	ProviderBreakerOpen.WithLabelValues(provider).Set(v)
}

// ObserveQueueStats copies a stats snapshot into the queue depth gauges.
func ObserveQueueStats(s models.QueueStats) {
	QueueDepth.WithLabelValues(string(models.JobPending)).Set(float64(s.Pending))
	QueueDepth.WithLabelValues(string(models.JobProcessing)).Set(float64(s.Processing))
	QueueDepth.WithLabelValues(string(models.JobRetrying)).Set(float64(s.Retrying))
	QueueDepth.WithLabelValues(string(models.JobCompleted)).Set(float64(s.Completed))
	QueueDepth.WithLabelValues(string(models.JobFailed)).Set(float64(s.Failed))
}

// RecordVote counts one vote attempt.
func RecordVote(target models.VoteTarget, counted bool) {
	result := "duplicate"
	if counted {
		result = "counted"
	}
	VotesRecorded.WithLabelValues(string(target), result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
