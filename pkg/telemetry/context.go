package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging,
// tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here; it keeps serving
	// until the process exits.

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext bundles the context, span, logger, and timer for
// one instrumented operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing,
// and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithValidationContext creates a context enriched with telemetry for
// one validation run: a span, a validation-scoped logger, a started
// metric, and a started event.
func WithValidationContext(ctx context.Context, validationID, level string, parameters int) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartValidationSpan(ctx, validationID, level)

	logger := tel.Logger.WithValidationID(validationID).WithField("level", level)
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordValidationStarted(level)
	_ = tel.Events.PublishValidationStarted(validationID, level, parameters)

	spanCtx = context.WithValue(spanCtx, validationSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, validationTimerKey{}, NewTimer())

	return spanCtx
}

// validationSpanKey is the context key for validation spans.
type validationSpanKey struct{}

// validationTimerKey is the context key for validation timers.
type validationTimerKey struct{}

// EndValidationContext completes the validation context, recording
// metrics and events.
func EndValidationContext(ctx context.Context, validationID, level string, valid bool, errors, warnings, parameters int, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(validationSpanKey{}).(trace.Span); ok {
		span.SetAttributes(
			AttrValid.Bool(valid),
			AttrErrorCount.Int(errors),
			AttrWarningCount.Int(warnings),
		)
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	timer, _ := ctx.Value(validationTimerKey{}).(*Timer)
	if timer == nil {
		timer = NewTimer()
	}
	duration := timer.Duration()

	tel.Metrics.RecordValidationCompleted(level, valid, duration, parameters)

	if err != nil {
		_ = tel.Events.PublishValidationError(validationID, err.Error())
	} else {
		_ = tel.Events.PublishValidationCompleted(validationID, valid, errors, warnings, duration)
	}
}

// RecordPhase runs one validation phase inside a span and records its
// duration.
func RecordPhase(ctx context.Context, validationID, phase string, fn func(context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartPhaseSpan(ctx, validationID, phase)
	defer span.End()

	timer := NewTimer()
	err := fn(spanCtx)

	tel.Metrics.RecordPhaseDuration(phase, timer.Duration())
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}

	return err
}
