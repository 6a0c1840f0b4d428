package ferret

import (
	"context"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
)

// Event is an immutable fact about an aggregate.
type Event struct {
	// Type is the event type tag (e.g., "incremented").
	Type string

	// Properties is the event payload.
	Properties Properties
}

// NewEvent creates an Event. props is copied in normal form.
func NewEvent(eventType string, props Properties) Event {
	return Event{Type: eventType, Properties: props.Normalize()}
}

// RecordedEvent is an event as the log recorded it.
type RecordedEvent struct {
	Event

	// ID is the globally unique event identifier.
	ID string

	// StreamID identifies the stream this event belongs to.
	StreamID string

	// Version is the aggregate version this event produced (0-based).
	Version int64

	// GlobalPosition is the position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was stored.
	Timestamp time.Time

	// Metadata contains contextual information.
	Metadata Metadata
}

// Metadata contains contextual information about an event.
// It supports distributed tracing, multi-tenancy, and custom key-value pairs.
type Metadata struct {
	// CorrelationID links related events across services for distributed tracing.
	CorrelationID string `json:"correlationId,omitempty"`

	// CausationID identifies the event or command that caused this event.
	CausationID string `json:"causationId,omitempty"`

	// UserID identifies the user who triggered this event.
	UserID string `json:"userId,omitempty"`

	// TenantID identifies the tenant for multi-tenant applications.
	TenantID string `json:"tenantId,omitempty"`

	// Custom contains arbitrary key-value pairs for application-specific metadata.
	Custom map[string]string `json:"custom,omitempty"`
}

// WithCorrelationID returns a copy of Metadata with the correlation ID set.
func (m Metadata) WithCorrelationID(id string) Metadata {
	m.CorrelationID = id
	return m
}

// WithCausationID returns a copy of Metadata with the causation ID set.
func (m Metadata) WithCausationID(id string) Metadata {
	m.CausationID = id
	return m
}

// WithUserID returns a copy of Metadata with the user ID set.
func (m Metadata) WithUserID(id string) Metadata {
	m.UserID = id
	return m
}

// WithTenantID returns a copy of Metadata with the tenant ID set.
func (m Metadata) WithTenantID(id string) Metadata {
	m.TenantID = id
	return m
}

// WithCustom returns a copy of Metadata with a custom key-value pair added.
func (m Metadata) WithCustom(key, value string) Metadata {
	custom := make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		custom[k] = v
	}
	custom[key] = value
	m.Custom = custom
	return m
}

// IsEmpty reports whether the Metadata has no values set.
func (m Metadata) IsEmpty() bool {
	return m.CorrelationID == "" &&
		m.CausationID == "" &&
		m.UserID == "" &&
		m.TenantID == "" &&
		len(m.Custom) == 0
}

func (m Metadata) toRecord() adapters.Metadata {
	return adapters.Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Custom:        m.Custom,
	}
}

func metadataFromRecord(m adapters.Metadata) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		TenantID:      m.TenantID,
		Custom:        m.Custom,
	}
}

type metadataKey struct{}

// ContextWithMetadata returns a context carrying m. The repository stamps it
// on every record it commits.
func ContextWithMetadata(ctx context.Context, m Metadata) context.Context {
	return context.WithValue(ctx, metadataKey{}, m)
}

// MetadataFromContext returns the metadata carried by ctx, if any.
func MetadataFromContext(ctx context.Context) Metadata {
	if m, ok := ctx.Value(metadataKey{}).(Metadata); ok {
		return m
	}
	return Metadata{}
}

// CorrelationIDFromContext returns the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	return MetadataFromContext(ctx).CorrelationID
}

// WithCorrelationID returns a context with the correlation ID set.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return ContextWithMetadata(ctx, MetadataFromContext(ctx).WithCorrelationID(id))
}

// CausationIDFromContext returns the causation ID from context.
func CausationIDFromContext(ctx context.Context) string {
	return MetadataFromContext(ctx).CausationID
}

// WithCausationID returns a context with the causation ID set.
func WithCausationID(ctx context.Context, id string) context.Context {
	return ContextWithMetadata(ctx, MetadataFromContext(ctx).WithCausationID(id))
}

// TenantIDFromContext returns the tenant ID from context.
func TenantIDFromContext(ctx context.Context) string {
	return MetadataFromContext(ctx).TenantID
}

// WithTenantID returns a context with the tenant ID set.
func WithTenantID(ctx context.Context, id string) context.Context {
	return ContextWithMetadata(ctx, MetadataFromContext(ctx).WithTenantID(id))
}
