package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the validation engine.
type Metrics struct {
	config MetricsConfig

	// Validation metrics
	validationsStarted   *prometheus.CounterVec
	validationsCompleted *prometheus.CounterVec
	validationDuration   *prometheus.HistogramVec
	parametersValidated  prometheus.Counter
	budgetExceeded       prometheus.Counter

	// Diagnostic metrics
	diagnostics *prometheus.CounterVec

	// Phase metrics
	phaseDuration *prometheus.HistogramVec

	// Cache metrics
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter

	// Catalog metrics
	catalogReloads    *prometheus.CounterVec
	catalogParameters prometheus.Gauge

	// System metrics
	activeValidations prometheus.Gauge
	historySize       prometheus.Gauge

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

	// Create a new registry
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		validationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_started_total",
				Help:      "Total number of validations started",
			},
			[]string{"level"},
		),
		validationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_completed_total",
				Help:      "Total number of validations completed",
			},
			[]string{"result"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Duration of configuration validation in seconds",
				Buckets:   buckets,
			},
			[]string{"level"},
		),
		parametersValidated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parameters_validated_total",
				Help:      "Total number of parameter values checked",
			},
		),
		budgetExceeded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_exceeded_total",
				Help:      "Total number of validations exceeding the latency budget",
			},
		),

		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Total number of diagnostics produced",
			},
			[]string{"severity", "code"},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of individual validation phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase"},
		),

		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of validation cache hits",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of validation cache misses",
			},
		),
		cacheEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Total number of expired validation cache entries removed",
			},
		),

		catalogReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_reloads_total",
				Help:      "Total number of catalog reloads",
			},
			[]string{"status"},
		),
		catalogParameters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_parameters",
				Help:      "Current number of parameters in the loaded catalog",
			},
		),

		activeValidations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_validations",
				Help:      "Current number of in-flight validations",
			},
		),
		historySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "history_size",
				Help:      "Current number of retained validation results",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.validationsStarted,
		m.validationsCompleted,
		m.validationDuration,
		m.parametersValidated,
		m.budgetExceeded,
		m.diagnostics,
		m.phaseDuration,
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.catalogReloads,
		m.catalogParameters,
		m.activeValidations,
		m.historySize,
	)

	return m, nil
}

// RecordValidationStarted increments the counter for started validations.
func (m *Metrics) RecordValidationStarted(level string) {
	if m.validationsStarted == nil {
		return
	}
	m.validationsStarted.WithLabelValues(level).Inc()
	m.activeValidations.Inc()
}

// RecordValidationCompleted records a finished validation.
func (m *Metrics) RecordValidationCompleted(level string, valid bool, duration time.Duration, parameters int) {
	if m.validationsCompleted == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.validationsCompleted.WithLabelValues(result).Inc()
	m.validationDuration.WithLabelValues(level).Observe(duration.Seconds())
	m.parametersValidated.Add(float64(parameters))
	m.activeValidations.Dec()
}

// RecordBudgetExceeded records a validation that overran the latency budget.
func (m *Metrics) RecordBudgetExceeded() {
	if m.budgetExceeded == nil {
		return
	}
	m.budgetExceeded.Inc()
}

// RecordDiagnostic records a produced diagnostic by severity and code.
func (m *Metrics) RecordDiagnostic(severity, code string) {
	if m.diagnostics == nil {
		return
	}
	m.diagnostics.WithLabelValues(severity, code).Inc()
}

// RecordPhaseDuration records how long one validation phase took.
func (m *Metrics) RecordPhaseDuration(phase string, duration time.Duration) {
	if m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordCacheAccesses adds validation cache hit and miss counts,
// typically the delta observed over one run.
func (m *Metrics) RecordCacheAccesses(hits, misses uint64) {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(float64(hits))
	m.cacheMisses.Add(float64(misses))
}

// RecordCacheEvictions adds to the eviction counter.
func (m *Metrics) RecordCacheEvictions(count uint64) {
	if m.cacheEvictions == nil {
		return
	}
	m.cacheEvictions.Add(float64(count))
}

// RecordCatalogReload records a catalog reload attempt.
func (m *Metrics) RecordCatalogReload(success bool, parameters int) {
	if m.catalogReloads == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.catalogReloads.WithLabelValues(status).Inc()
	if success {
		m.catalogParameters.Set(float64(parameters))
	}
}

// SetHistorySize sets the current number of retained validation results.
func (m *Metrics) SetHistorySize(count int) {
	if m.historySize == nil {
		return
	}
	m.historySize.Set(float64(count))
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
