package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the release engine.
type Metrics struct {
	config MetricsConfig

	// Release lifecycle metrics
	releasesCreated  *prometheus.CounterVec
	commitsStarted   *prometheus.CounterVec
	commitsCompleted *prometheus.CounterVec
	commitDuration   *prometheus.HistogramVec

	// Repository manager metrics
	repositoryCalls    *prometheus.CounterVec
	repositoryDuration *prometheus.HistogramVec
	repositoryErrors   *prometheus.CounterVec

	// Presence checker metrics
	presenceBatches  prometheus.Counter
	presencePackages prometheus.Counter

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeCommits prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		releasesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "releases_created_total",
				Help:      "Total number of releases created",
			},
			[]string{"platform"},
		),
		commitsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_started_total",
				Help:      "Total number of release commits started",
			},
			[]string{"platform"},
		),
		commitsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_completed_total",
				Help:      "Total number of release commits finished, by resulting status",
			},
			[]string{"platform", "status"},
		),
		commitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_duration_seconds",
				Help:      "Duration of release commit execution in seconds",
				Buckets:   buckets,
			},
			[]string{"platform", "status"},
		),

		repositoryCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_calls_total",
				Help:      "Total number of repository manager calls",
			},
			[]string{"operation"},
		),
		repositoryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "repository_call_duration_seconds",
				Help:      "Duration of repository manager calls in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		repositoryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_errors_total",
				Help:      "Total number of repository manager call failures",
			},
			[]string{"operation"},
		),

		presenceBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "presence_batches_total",
				Help:      "Total number of batched presence-check queries issued",
			},
		),
		presencePackages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "presence_packages_total",
				Help:      "Total number of candidate packages presence-checked",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeCommits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_commits",
				Help:      "Current number of release commits in flight",
			},
		),
	}

	registry.MustRegister(
		m.releasesCreated,
		m.commitsStarted,
		m.commitsCompleted,
		m.commitDuration,
		m.repositoryCalls,
		m.repositoryDuration,
		m.repositoryErrors,
		m.presenceBatches,
		m.presencePackages,
		m.errorsByClass,
		m.errorsByCode,
		m.activeCommits,
	)

	return m, nil
}

// Release lifecycle metrics

// RecordReleaseCreated increments the counter for created releases.
func (m *Metrics) RecordReleaseCreated(platform string) {
	if m.releasesCreated == nil {
		return
	}
	m.releasesCreated.WithLabelValues(platform).Inc()
}

// RecordCommitStarted increments the counter for started commits.
func (m *Metrics) RecordCommitStarted(platform string) {
	if m.commitsStarted == nil {
		return
	}
	m.commitsStarted.WithLabelValues(platform).Inc()
	m.activeCommits.Inc()
}

// RecordCommitCompleted records a finished commit with its resulting release
// status and duration.
func (m *Metrics) RecordCommitCompleted(platform, status string, duration time.Duration) {
	if m.commitsCompleted == nil {
		return
	}
	m.commitsCompleted.WithLabelValues(platform, status).Inc()
	m.commitDuration.WithLabelValues(platform, status).Observe(duration.Seconds())
	m.activeCommits.Dec()
}

// Repository manager metrics

// RecordRepositoryCall records one repository manager call with its duration.
func (m *Metrics) RecordRepositoryCall(operation string, duration time.Duration) {
	if m.repositoryCalls == nil {
		return
	}
	m.repositoryCalls.WithLabelValues(operation).Inc()
	m.repositoryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRepositoryError records a failed repository manager call.
func (m *Metrics) RecordRepositoryError(operation string) {
	if m.repositoryErrors == nil {
		return
	}
	m.repositoryErrors.WithLabelValues(operation).Inc()
}

// Presence checker metrics

// RecordPresenceCheck records one presence check run.
func (m *Metrics) RecordPresenceCheck(batches, packages int) {
	if m.presenceBatches == nil {
		return
	}
	m.presenceBatches.Add(float64(batches))
	m.presencePackages.Add(float64(packages))
}

// Error metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
