// Package metrics provides Prometheus metrics integration for ferret.
//
// Basic usage:
//
//	m := metrics.New()
//	prometheus.MustRegister(m.Collectors()...)
//
//	// Count transactions by outcome
//	engine := ferret.NewEngine(repo, ferret.WithMiddleware(m.TransactMiddleware()))
//
//	// Time event log operations
//	repo := ferret.NewRepository(m.WrapAdapter(adapter))
//
// The metrics collected include:
//   - Transaction counts by outcome and their durations
//   - Event log operations (append, load, stream info)
//   - Error counts by type
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/AshkanYarmoradi/go-ferret/adapters"
)

// Default metric labels.
const (
	LabelCommandType = "command_type"
	LabelEventType   = "event_type"
	LabelOperation   = "operation"
	LabelOutcome     = "outcome"
	LabelStatus      = "status"
	LabelErrorType   = "error_type"
	LabelService     = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OutcomeError labels a transaction that returned an error instead of a result.
const OutcomeError = "error"

// Operation values.
const (
	OperationAppend        = "append"
	OperationLoad          = "load"
	OperationGetStreamInfo = "get_stream_info"
)

// Metrics holds all Prometheus metrics for ferret.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec

	eventLogOperationsTotal   *prometheus.CounterVec
	eventLogOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal       *prometheus.CounterVec
	eventsLoadedTotal         *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "ferret",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) initMetrics() {
	m.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "commands_total",
			Help:      "Total number of transacted commands by outcome.",
		},
		[]string{LabelService, LabelCommandType, LabelOutcome},
	)

	m.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "command_duration_seconds",
			Help:      "Duration of command transactions in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelCommandType},
	)

	m.commandsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "commands_in_flight",
			Help:      "Number of commands currently being transacted.",
		},
		[]string{LabelService, LabelCommandType},
	)

	m.eventLogOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eventlog_operations_total",
			Help:      "Total number of event log operations.",
		},
		[]string{LabelService, LabelOperation, LabelStatus},
	)

	m.eventLogOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eventlog_operation_duration_seconds",
			Help:      "Duration of event log operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelOperation},
	)

	m.eventsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_appended_total",
			Help:      "Total number of events appended to streams.",
		},
		[]string{LabelService, LabelEventType},
	)

	m.eventsLoadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_loaded_total",
			Help:      "Total number of events loaded from streams.",
		},
		[]string{LabelService},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by type.",
		},
		[]string{LabelService, LabelErrorType},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.commandsInFlight,
		m.eventLogOperationsTotal,
		m.eventLogOperationDuration,
		m.eventsAppendedTotal,
		m.eventsLoadedTotal,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Transact Middleware
// =============================================================================

// TransactMiddleware returns middleware that records a transaction's
// outcome and duration.
func (m *Metrics) TransactMiddleware() ferret.Middleware {
	return func(next ferret.TransactFunc) ferret.TransactFunc {
		return func(ctx context.Context, cmd ferret.Command) (ferret.Result, error) {
			cmdType := cmd.Type

			m.commandsInFlight.WithLabelValues(m.serviceName, cmdType).Inc()
			defer m.commandsInFlight.WithLabelValues(m.serviceName, cmdType).Dec()

			start := time.Now()
			result, err := next(ctx, cmd)
			duration := time.Since(start)

			m.commandDuration.WithLabelValues(m.serviceName, cmdType).Observe(duration.Seconds())

			outcome := result.Outcome().String()
			if err != nil {
				outcome = OutcomeError
				m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
			}

			m.commandsTotal.WithLabelValues(m.serviceName, cmdType, outcome).Inc()

			return result, err
		}
	}
}

// errorTypeName extracts the error type name based on sentinel errors.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ferret.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ferret.ErrStreamNotFound):
		return "stream_not_found"
	case errors.Is(err, ferret.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, ferret.ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ferret.ErrHandlerPanicked):
		return "handler_panicked"
	case errors.Is(err, ferret.ErrSerializationFailed):
		return "serialization_failed"
	case errors.Is(err, ferret.ErrAggregateTypeNotRegistered):
		return "aggregate_type_not_registered"
	case errors.Is(err, ferret.ErrInvalidDecision):
		return "invalid_decision"
	case errors.Is(err, ferret.ErrInvalidAggregate):
		return "invalid_aggregate"
	case errors.Is(err, ferret.ErrInconsistentStream):
		return "inconsistent_stream"
	case errors.Is(err, ferret.ErrNilAggregate):
		return "nil_aggregate"
	case errors.Is(err, adapters.ErrEmptyStreamID):
		return "empty_stream_id"
	case errors.Is(err, adapters.ErrNoEvents):
		return "no_events"
	case errors.Is(err, adapters.ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// =============================================================================
// Event Log Adapter
// =============================================================================

// AdapterMiddleware wraps an EventLogAdapter with metrics.
type AdapterMiddleware struct {
	adapter adapters.EventLogAdapter
	metrics *Metrics
}

var (
	_ adapters.EventLogAdapter = (*AdapterMiddleware)(nil)
	_ adapters.HealthChecker   = (*AdapterMiddleware)(nil)
)

// WrapAdapter wraps an adapter with metrics collection.
func (m *Metrics) WrapAdapter(adapter adapters.EventLogAdapter) *AdapterMiddleware {
	return &AdapterMiddleware{
		adapter: adapter,
		metrics: m,
	}
}

func (am *AdapterMiddleware) observe(operation string, start time.Time, err error) {
	m := am.metrics
	m.eventLogOperationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.eventLogOperationsTotal.WithLabelValues(m.serviceName, operation, status).Inc()
}

// Append stores events with metrics. A lost race counts as a conflict,
// not as an adapter error.
func (am *AdapterMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := am.adapter.Append(ctx, streamID, events, expectedVersion)
	am.observe(OperationAppend, start, err)

	m := am.metrics
	switch {
	case err == nil:
		for _, e := range events {
			m.eventsAppendedTotal.WithLabelValues(m.serviceName, e.Type).Inc()
		}
	case errors.Is(err, adapters.ErrConcurrencyConflict):
		m.errorsTotal.WithLabelValues(m.serviceName, "concurrency_conflict").Inc()
	default:
		m.errorsTotal.WithLabelValues(m.serviceName, "append_error").Inc()
	}

	return stored, err
}

// Load retrieves events with metrics.
func (am *AdapterMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := am.adapter.Load(ctx, streamID, fromVersion)
	am.observe(OperationLoad, start, err)

	m := am.metrics
	if err != nil {
		m.errorsTotal.WithLabelValues(m.serviceName, "load_error").Inc()
	} else {
		m.eventsLoadedTotal.WithLabelValues(m.serviceName).Add(float64(len(events)))
	}

	return events, err
}

// GetStreamInfo returns stream metadata with metrics.
func (am *AdapterMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	start := time.Now()
	info, err := am.adapter.GetStreamInfo(ctx, streamID)
	am.observe(OperationGetStreamInfo, start, err)
	return info, err
}

// Initialize initializes the wrapped adapter.
func (am *AdapterMiddleware) Initialize(ctx context.Context) error {
	return am.adapter.Initialize(ctx)
}

// Close closes the wrapped adapter.
func (am *AdapterMiddleware) Close() error {
	return am.adapter.Close()
}

// Ping forwards to the wrapped adapter when it supports health checks.
func (am *AdapterMiddleware) Ping(ctx context.Context) error {
	if hc, ok := am.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// Unwrap returns the wrapped adapter.
func (am *AdapterMiddleware) Unwrap() adapters.EventLogAdapter {
	return am.adapter
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// =============================================================================
// Getters for testing
// =============================================================================

// CommandsTotal returns the commands counter.
func (m *Metrics) CommandsTotal() *prometheus.CounterVec {
	return m.commandsTotal
}

// CommandDuration returns the command duration histogram.
func (m *Metrics) CommandDuration() *prometheus.HistogramVec {
	return m.commandDuration
}

// CommandsInFlight returns the in-flight commands gauge.
func (m *Metrics) CommandsInFlight() *prometheus.GaugeVec {
	return m.commandsInFlight
}

// EventLogOperationsTotal returns the event log operations counter.
func (m *Metrics) EventLogOperationsTotal() *prometheus.CounterVec {
	return m.eventLogOperationsTotal
}

// EventLogOperationDuration returns the event log duration histogram.
func (m *Metrics) EventLogOperationDuration() *prometheus.HistogramVec {
	return m.eventLogOperationDuration
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return m.eventsAppendedTotal
}

// EventsLoadedTotal returns the events loaded counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec {
	return m.eventsLoadedTotal
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
