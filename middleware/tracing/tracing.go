// Package tracing provides OpenTelemetry integration for ferret.
//
// Basic usage with the engine:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	engine := ferret.NewEngine(repo, ferret.WithMiddleware(tracing.TransactMiddleware(tracer)))
//
// The transact span records the command type, the outcome and the
// aggregate version the result left behind. Adapter spans started inside
// it show the fetch and the conditional append as children.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/AshkanYarmoradi/go-ferret/adapters"
)

const (
	// TracerName is the name of the ferret tracer.
	TracerName = "github.com/AshkanYarmoradi/go-ferret"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "ferret"
)

// Tracer wraps OpenTelemetry tracer for ferret operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// =============================================================================
// Transact Middleware
// =============================================================================

// TransactMiddleware creates middleware that traces command transactions.
// Rejected and Conflict are ordinary outcomes and leave the span status Ok;
// only returned errors mark it failed.
func TransactMiddleware(tracer *Tracer) ferret.Middleware {
	return func(next ferret.TransactFunc) ferret.TransactFunc {
		return func(ctx context.Context, cmd ferret.Command) (ferret.Result, error) {
			ctx, span := tracer.StartSpan(ctx, fmt.Sprintf("transact.%s", cmd.Type),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("ferret.service", tracer.serviceName),
				attribute.String("ferret.command.type", cmd.Type),
			)

			if id := ferret.CorrelationIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("ferret.correlation_id", id))
			}
			if id := ferret.CausationIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("ferret.causation_id", id))
			}

			result, err := next(ctx, cmd)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return result, err
			}

			span.SetStatus(codes.Ok, "")
			span.SetAttributes(
				attribute.String("ferret.result.outcome", result.Outcome().String()),
				attribute.Int64("ferret.result.version", result.Version()),
			)
			if agg := result.Aggregate(); agg != nil {
				span.SetAttributes(attribute.String("ferret.result.stream_id", agg.StreamID()))
			}
			if result.IsRejected() {
				span.SetAttributes(attribute.String("ferret.result.reason", result.Reason()))
			}
			if result.IsOk() {
				span.SetAttributes(attribute.Int("ferret.result.events", len(result.Events())))
			}

			return result, err
		}
	}
}

// =============================================================================
// Event Log Adapter
// =============================================================================

// AdapterMiddleware wraps an EventLogAdapter with tracing.
type AdapterMiddleware struct {
	adapter adapters.EventLogAdapter
	tracer  *Tracer
}

var (
	_ adapters.EventLogAdapter = (*AdapterMiddleware)(nil)
	_ adapters.HealthChecker   = (*AdapterMiddleware)(nil)
)

// NewAdapterMiddleware wraps an adapter with tracing.
func NewAdapterMiddleware(adapter adapters.EventLogAdapter, tracer *Tracer) *AdapterMiddleware {
	return &AdapterMiddleware{
		adapter: adapter,
		tracer:  tracer,
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Append stores events with tracing.
func (m *AdapterMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.tracer.StartSpan(ctx, "eventlog.append",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("ferret.service", m.tracer.serviceName),
		attribute.String("ferret.stream_id", streamID),
		attribute.Int64("ferret.expected_version", expectedVersion),
		attribute.Int("ferret.events.count", len(events)),
	)

	if len(events) > 0 {
		eventTypes := make([]string, len(events))
		for i, e := range events {
			eventTypes[i] = e.Type
		}
		span.SetAttributes(attribute.StringSlice("ferret.events.types", eventTypes))
	}

	stored, err := m.adapter.Append(ctx, streamID, events, expectedVersion)

	finish(span, err)
	if err == nil && len(stored) > 0 {
		span.SetAttributes(
			attribute.Int64("ferret.stored.version", stored[len(stored)-1].Version),
			attribute.Int64("ferret.stored.global_position", int64(stored[len(stored)-1].GlobalPosition)),
		)
	}

	return stored, err
}

// Load retrieves events with tracing.
func (m *AdapterMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.tracer.StartSpan(ctx, "eventlog.load",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("ferret.service", m.tracer.serviceName),
		attribute.String("ferret.stream_id", streamID),
		attribute.Int64("ferret.from_version", fromVersion),
	)

	events, err := m.adapter.Load(ctx, streamID, fromVersion)

	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("ferret.events.loaded", len(events)))
	}

	return events, err
}

// GetStreamInfo returns stream metadata with tracing.
func (m *AdapterMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := m.tracer.StartSpan(ctx, "eventlog.get_stream_info",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("ferret.service", m.tracer.serviceName),
		attribute.String("ferret.stream_id", streamID),
	)

	info, err := m.adapter.GetStreamInfo(ctx, streamID)

	finish(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int64("ferret.stream.version", info.Version))
	}

	return info, err
}

// Initialize initializes the adapter with tracing.
func (m *AdapterMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.tracer.StartSpan(ctx, "eventlog.initialize",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(attribute.String("ferret.service", m.tracer.serviceName))

	err := m.adapter.Initialize(ctx)
	finish(span, err)
	return err
}

// Close closes the adapter.
func (m *AdapterMiddleware) Close() error {
	return m.adapter.Close()
}

// Ping forwards to the wrapped adapter when it supports health checks.
func (m *AdapterMiddleware) Ping(ctx context.Context) error {
	if hc, ok := m.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// =============================================================================
// Span Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
