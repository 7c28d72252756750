package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for provisioning runs. A run against a
// real directory takes minutes because of propagation waits, so an optional
// /metrics listener is useful for watching long setups from the outside.
type Metrics struct {
	config MetricsConfig

	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec

	phasesExecuted *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec

	directoryCalls    *prometheus.CounterVec
	directoryDuration *prometheus.HistogramVec

	retryAttempts *prometheus.CounterVec

	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of provisioning runs started",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of provisioning runs completed",
		}, []string{"status"}),
		phasesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_executed_total",
			Help:      "Total number of phases executed",
		}, []string{"phase", "outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of phase execution in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"phase"}),
		directoryCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_requests_total",
			Help:      "Total number of directory API requests",
		}, []string{"method", "status"}),
		directoryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directory_request_duration_seconds",
			Help:      "Duration of directory API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts",
		}, []string{"operation"}),
		errorsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of classified errors",
		}, []string{"class"}),
	}

	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted,
		m.phasesExecuted, m.phaseDuration,
		m.directoryCalls, m.directoryDuration,
		m.retryAttempts, m.errorsByClass,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// StartServer starts the /metrics HTTP listener when a listen address is
// configured. It returns immediately; serving happens in the background.
func (m *Metrics) StartServer() error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The CLI keeps running; metrics are best-effort.
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Close shuts down the metrics listener, if any.
func (m *Metrics) Close() error {
	if m.server != nil {
		return m.server.Close()
	}
	return nil
}

// RecordRunStarted increments the run counter.
func (m *Metrics) RecordRunStarted() {
	if m.registry == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a finished run with its final status.
func (m *Metrics) RecordRunCompleted(status string) {
	if m.registry == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
}

// RecordPhase records a phase execution outcome and duration.
func (m *Metrics) RecordPhase(phase, outcome string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.phasesExecuted.WithLabelValues(phase, outcome).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordDirectoryRequest records a directory API call.
func (m *Metrics) RecordDirectoryRequest(method string, status int, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.directoryCalls.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	m.directoryDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRetry records a retry attempt for an operation.
func (m *Metrics) RecordRetry(operation string) {
	if m.registry == nil {
		return
	}
	m.retryAttempts.WithLabelValues(operation).Inc()
}

// RecordError records a classified error.
func (m *Metrics) RecordError(class string) {
	if m.registry == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}
