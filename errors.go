package ferret

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
// Adapter errors are aliased so callers need only import this package.
var (
	// ErrStreamNotFound indicates the requested stream does not exist.
	ErrStreamNotFound = adapters.ErrStreamNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	// The repository turns it into a Conflict result; it only surfaces as an
	// error when talking to an adapter directly.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrAdapterClosed indicates the adapter has been closed.
	ErrAdapterClosed = adapters.ErrAdapterClosed

	// ErrSerializationFailed indicates event serialization/deserialization failed.
	ErrSerializationFailed = errors.New("ferret: serialization failed")

	// ErrNilAggregate indicates a nil aggregate was passed.
	ErrNilAggregate = errors.New("ferret: nil aggregate")

	// ErrInvalidAggregate indicates an aggregate that was not built by an
	// AggregateType or was accepted with a different identity.
	ErrInvalidAggregate = errors.New("ferret: invalid aggregate")

	// ErrPendingEvents indicates an operation that requires an aggregate
	// without uncommitted events.
	ErrPendingEvents = errors.New("ferret: aggregate has pending events")

	// ErrInconsistentStream indicates the log returned a record out of sequence.
	ErrInconsistentStream = errors.New("ferret: inconsistent stream")

	// ErrAggregateTypeNotRegistered indicates no aggregate type is registered for a tag.
	ErrAggregateTypeNotRegistered = errors.New("ferret: aggregate type not registered")

	// Command related errors

	// ErrHandlerNotFound indicates no command type is registered for a tag.
	ErrHandlerNotFound = errors.New("ferret: handler not found")

	// ErrValidationFailed indicates a command or identity could not be validated.
	ErrValidationFailed = errors.New("ferret: validation failed")

	// ErrInvalidDecision indicates a handler returned an unusable decision.
	ErrInvalidDecision = errors.New("ferret: invalid decision")

	// ErrHandlerPanicked indicates a handler panicked during execution.
	ErrHandlerPanicked = errors.New("ferret: handler panicked")
)

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	EventType string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("ferret: failed to %s event type %q: %v",
		e.Operation, e.EventType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(eventType, operation string, cause error) *SerializationError {
	return &SerializationError{
		EventType: eventType,
		Operation: operation,
		Cause:     cause,
	}
}

// AggregateTypeNotRegisteredError reports an aggregate type tag with no declaration.
type AggregateTypeNotRegisteredError struct {
	AggregateType string
}

// Error returns the error message.
func (e *AggregateTypeNotRegisteredError) Error() string {
	return fmt.Sprintf("ferret: aggregate type %q not registered", e.AggregateType)
}

// Is reports whether this error matches the target error.
func (e *AggregateTypeNotRegisteredError) Is(target error) bool {
	return target == ErrAggregateTypeNotRegistered
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *AggregateTypeNotRegisteredError) Unwrap() error {
	return ErrAggregateTypeNotRegistered
}

// NewAggregateTypeNotRegisteredError creates a new AggregateTypeNotRegisteredError.
func NewAggregateTypeNotRegisteredError(aggType string) *AggregateTypeNotRegisteredError {
	return &AggregateTypeNotRegisteredError{AggregateType: aggType}
}

// InconsistentStreamError describes a record whose version breaks the sequence.
type InconsistentStreamError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// Error returns the error message.
func (e *InconsistentStreamError) Error() string {
	return fmt.Sprintf("ferret: inconsistent stream %q: expected record version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is reports whether this error matches the target error.
func (e *InconsistentStreamError) Is(target error) bool {
	return target == ErrInconsistentStream
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *InconsistentStreamError) Unwrap() error {
	return ErrInconsistentStream
}

// HandlerNotFoundError provides detailed information about a missing handler.
type HandlerNotFoundError struct {
	CommandType string
}

// Error returns the error message.
func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("ferret: no handler registered for command type %q", e.CommandType)
}

// Is reports whether this error matches the target error.
func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *HandlerNotFoundError) Unwrap() error {
	return ErrHandlerNotFound
}

// NewHandlerNotFoundError creates a new HandlerNotFoundError.
func NewHandlerNotFoundError(cmdType string) *HandlerNotFoundError {
	return &HandlerNotFoundError{CommandType: cmdType}
}

// ValidationError reports a missing or malformed property.
type ValidationError struct {
	Type    string
	Field   string
	Message string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ferret: validation failed for %q: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("ferret: validation failed for %q: %s: %s", e.Type, e.Field, e.Message)
}

// Is reports whether this error matches the target error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new ValidationError.
func NewValidationError(typ, field, message string) *ValidationError {
	return &ValidationError{Type: typ, Field: field, Message: message}
}

// PanicError provides detailed information about a handler panic.
type PanicError struct {
	CommandType string
	Value       interface{}
	Stack       string
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("ferret: handler panicked while processing %q: %v", e.CommandType, e.Value)
}

// Is reports whether this error matches the target error.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanicked
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *PanicError) Unwrap() error {
	return ErrHandlerPanicked
}

// NewPanicError creates a new PanicError.
func NewPanicError(cmdType string, value interface{}, stack string) *PanicError {
	return &PanicError{
		CommandType: cmdType,
		Value:       value,
		Stack:       stack,
	}
}
