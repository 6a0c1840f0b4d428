// Package adapters provides interfaces for event log backends.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// so the repository can tell a lost race from a broken backend.
var (
	// ErrConcurrencyConflict is returned when the conditional append fails
	// because the stream length no longer matches the expected version.
	ErrConcurrencyConflict = errors.New("ferret: concurrency conflict")

	// ErrStreamNotFound is returned when a stream does not exist.
	ErrStreamNotFound = errors.New("ferret: stream not found")

	// ErrEmptyStreamID is returned when an empty stream ID is provided.
	ErrEmptyStreamID = errors.New("ferret: stream ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("ferret: no events to append")

	// ErrInvalidVersion is returned when an invalid version is specified.
	ErrInvalidVersion = errors.New("ferret: invalid version")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("ferret: adapter is closed")
)

// Metadata contains event context for tracing and multi-tenancy.
type Metadata struct {
	// CorrelationID links related events across services.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the command or event that caused this event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies who triggered this event.
	UserID string `json:"userId,omitempty"`

	// TenantID for multi-tenant applications.
	TenantID string `json:"tenantId,omitempty"`

	// Custom holds any additional metadata.
	Custom map[string]string `json:"custom,omitempty"`
}

// EventRecord is an event to be appended to a stream.
type EventRecord struct {
	// Type is the event type tag.
	Type string

	// Data is the serialized event properties.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata
}

// StoredEvent is a persisted event with its storage metadata.
type StoredEvent struct {
	// ID is the unique event identifier.
	ID string

	// StreamID is the stream this event belongs to.
	StreamID string

	// Type is the event type tag.
	Type string

	// Data is the serialized event properties.
	Data []byte

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the position within the stream (1-based).
	Version int64

	// GlobalPosition is the ordering position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was stored.
	Timestamp time.Time
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	// StreamID is the stream identifier.
	StreamID string

	// Category is the aggregate type (first part of the stream ID).
	Category string

	// Version is the current stream version, equal to the number of events.
	Version int64

	// EventCount is the number of events in the stream.
	EventCount int64

	// CreatedAt is when the first event was stored.
	CreatedAt time.Time

	// UpdatedAt is when the last event was stored.
	UpdatedAt time.Time
}

// EventLogAdapter is the interface event log backends implement.
// It is the only place where durability and atomicity live; the repository
// on top of it holds no locks.
type EventLogAdapter interface {
	// Append atomically stores events at the end of the stream.
	// expectedVersion is the stream length the caller observed:
	//   - AnyVersion (-1): skip the check
	//   - NoStream (0): the stream must not exist yet
	//   - StreamExists (-2): the stream must exist
	//   - any positive number: the stream must hold exactly that many events
	// On mismatch nothing is written and a *ConcurrencyError is returned.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load returns the events of a stream whose version is strictly greater
	// than fromVersion, in append order. Use fromVersion=0 to load all events.
	// A missing stream yields an empty slice, not an error.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetStreamInfo returns metadata about a stream.
	// Returns ErrStreamNotFound if the stream does not exist.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// Initialize sets up the required storage schema.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// HealthChecker is implemented by adapters that can report backend health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
