package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	papersCreatedTotal *prometheus.CounterVec
	papersGradedTotal  *prometheus.CounterVec
	progressSavesTotal *prometheus.CounterVec
	manualGradesTotal  prometheus.Counter
	paperScorePercent  *prometheus.HistogramVec
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	eventsPersisted    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors of the paper service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		papersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papers_created_total",
			Help: "Total number of papers created.",
		}, []string{"difficulty"})

		papersGradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papers_graded_total",
			Help: "Final submissions by outcome.",
		}, []string{"difficulty", "outcome"})

		progressSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_progress_updates_total",
			Help: "Progress updates by outcome.",
		}, []string{"outcome"})

		manualGradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paper_manual_grades_total",
			Help: "Essay questions graded by hand.",
		})

		paperScorePercent = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "paper_score_percentage",
			Help:    "Distribution of final score percentages.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"difficulty"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		eventsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_events_persisted_total",
			Help: "Audit events written by the event worker, by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			papersCreatedTotal,
			papersGradedTotal,
			progressSavesTotal,
			manualGradesTotal,
			paperScorePercent,
			httpRequestsTotal,
			httpLatencySeconds,
			eventsPersisted,
		)
	})
}

// PapersCreated exposes the paper creation counter.
func PapersCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return papersCreatedTotal
}

// PapersGraded exposes the grading outcome counter.
func PapersGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return papersGradedTotal
}

func ProgressSaves() *prometheus.CounterVec {
	RegisterMetrics()
	return progressSavesTotal
}

func ManualGrades() prometheus.Counter {
	RegisterMetrics()
	return manualGradesTotal
}

// ScorePercentage exposes the final score histogram.
func ScorePercentage() *prometheus.HistogramVec {
	RegisterMetrics()
	return paperScorePercent
}

func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// EventsPersisted exposes the event worker result counter.
func EventsPersisted() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPersisted
}
