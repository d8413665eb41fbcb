// Package telemetry provides observability instrumentation for the
// validation engine.
//
// The package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and lifecycle event
// publishing into a unified system.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with OTLP/stdout exporters
//  3. Metrics Collection - Prometheus metrics for validation throughput,
//     latency, diagnostics, and cache behavior
//  4. Event Publishing - async lifecycle events for observability
//     collaborators (initialized, validation started/completed/error,
//     budget exceeded, shutdown)
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "paramguard"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("validation-engine")
//	logger = logger.WithValidationID("val-123").WithParameter("qRxLevMin")
//	logger.Info("Constraint evaluated")
//	logger.WithError(err).Error("Catalog reload failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Instrumenting a validation run
//
// The context helpers tie the pillars together for one validation:
//
//	ctx = telemetry.WithValidationContext(ctx, validationID, level, len(cfg))
//	err := telemetry.RecordPhase(ctx, validationID, "parameter", runPhase)
//	telemetry.EndValidationContext(ctx, validationID, level, valid, errs, warns, len(cfg), err)
//
// Each phase gets its own span and duration histogram sample; the run
// gets a started/completed event pair and start/stop metrics.
//
// # Metrics
//
// All metrics live under the configured namespace (default "paramguard"):
// validations_started_total, validations_completed_total,
// validation_duration_seconds, parameters_validated_total,
// budget_exceeded_total, diagnostics_total, phase_duration_seconds,
// cache_{hits,misses,evictions}_total, catalog_reloads_total,
// active_validations, history_size.
package telemetry
