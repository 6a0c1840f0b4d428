package ferret

import (
	"context"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
)

// Repository mediates between in-memory aggregates and the event log.
//
// It holds no locks: concurrent writers are arbitrated by the adapter's
// conditional append, and a lost race comes back as a Conflict result.
type Repository struct {
	adapter    adapters.EventLogAdapter
	types      *TypeRegistry
	serializer Serializer
	logger     Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(r *Repository) {
		r.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// WithAggregateTypes registers aggregate types with the repository.
func WithAggregateTypes(types ...*AggregateType) Option {
	return func(r *Repository) {
		r.types.Register(types...)
	}
}

// WithTypeRegistry replaces the repository's aggregate type registry.
func WithTypeRegistry(types *TypeRegistry) Option {
	return func(r *Repository) {
		r.types = types
	}
}

// NewRepository creates a Repository on top of adapter.
func NewRepository(adapter adapters.EventLogAdapter, opts ...Option) *Repository {
	r := &Repository{
		adapter:    adapter,
		types:      NewTypeRegistry(),
		serializer: NewJSONSerializer(),
		logger:     noopLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds aggregate types to the repository.
func (r *Repository) Register(types ...*AggregateType) {
	r.types.Register(types...)
}

// Adapter returns the underlying adapter.
func (r *Repository) Adapter() adapters.EventLogAdapter {
	return r.adapter
}

// Types returns the aggregate type registry.
func (r *Repository) Types() *TypeRegistry {
	return r.types
}

// Serializer returns the repository's serializer.
func (r *Repository) Serializer() Serializer {
	return r.serializer
}

// FetchLatest returns the aggregate identified by id as it stands in the log.
// An aggregate without history comes back new (version -1); that is not an error.
func (r *Repository) FetchLatest(ctx context.Context, id AggregateID) (*Aggregate, error) {
	aggType, err := r.resolve(id)
	if err != nil {
		return nil, err
	}

	agg, _, err := r.catchUp(ctx, aggType.Empty(id))
	return agg, err
}

// Refresh returns agg advanced by every event committed after its version.
// agg must not have pending events.
func (r *Repository) Refresh(ctx context.Context, agg *Aggregate) (*Aggregate, error) {
	if agg == nil {
		return nil, ErrNilAggregate
	}
	if !agg.valid() {
		return nil, ErrInvalidAggregate
	}
	if agg.HasPending() {
		return nil, ErrPendingEvents
	}

	next, _, err := r.catchUp(ctx, agg)
	return next, err
}

// History returns every event recorded for id, oldest first.
func (r *Repository) History(ctx context.Context, id AggregateID) ([]RecordedEvent, error) {
	aggType, err := r.resolve(id)
	if err != nil {
		return nil, err
	}

	_, records, err := r.catchUp(ctx, aggType.Empty(id))
	return records, err
}

// StreamInfo returns the log's metadata for the stream of id.
func (r *Repository) StreamInfo(ctx context.Context, id AggregateID) (*adapters.StreamInfo, error) {
	return r.adapter.GetStreamInfo(ctx, id.StreamID())
}

// Commit appends the pending events of agg to the log, provided no other
// writer extended the stream since agg was fetched.
//
// The result is Ok with the committed aggregate on success and Conflict with
// agg unchanged when the race was lost. An aggregate without pending events
// commits as Ok without contacting the log. Errors are reserved for misuse
// and backend failures; adapter errors are returned as they are.
func (r *Repository) Commit(ctx context.Context, agg *Aggregate) (Result, error) {
	if agg == nil {
		return Result{}, ErrNilAggregate
	}
	if !agg.valid() {
		return Result{}, ErrInvalidAggregate
	}
	aggType, ok := r.types.Lookup(agg.Type())
	if !ok {
		return Result{}, NewAggregateTypeNotRegisteredError(agg.Type())
	}
	if err := aggType.CheckID(agg.ID()); err != nil {
		return Result{}, err
	}

	if !agg.HasPending() {
		return Ok(nil, agg), nil
	}

	streamID := agg.StreamID()
	metadata := MetadataFromContext(ctx)

	records := make([]adapters.EventRecord, len(agg.pending))
	for i, event := range agg.pending {
		data, err := r.serializer.Serialize(event)
		if err != nil {
			return Result{}, fmt.Errorf("ferret: failed to serialize pending event %d: %w", i, err)
		}

		records[i] = adapters.EventRecord{
			Type:     event.Type,
			Data:     data,
			Metadata: metadata.toRecord(),
		}
	}

	stored, err := r.adapter.Append(ctx, streamID, records, agg.version+1)
	if err != nil {
		if errors.Is(err, adapters.ErrConcurrencyConflict) {
			r.logger.Debug("Commit lost race",
				"streamId", streamID,
				"version", agg.version,
				"error", err,
			)
			return Conflict(agg), nil
		}
		return Result{}, err
	}

	pending := agg.Pending()
	recorded := make([]RecordedEvent, len(stored))
	for i, s := range stored {
		recorded[i] = recordedFromStored(s, pending[i])
	}

	committed := agg.committed()

	r.logger.Debug("Committed events",
		"streamId", streamID,
		"count", len(pending),
		"version", committed.version,
	)

	return Ok(pending, committed).withRecords(recorded), nil
}

func (r *Repository) resolve(id AggregateID) (*AggregateType, error) {
	aggType, ok := r.types.Lookup(id.Type)
	if !ok {
		return nil, NewAggregateTypeNotRegisteredError(id.Type)
	}
	if err := aggType.CheckID(id); err != nil {
		return nil, err
	}
	return aggType, nil
}

// catchUp folds every event recorded after agg's version into agg.
// Each record must carry exactly the next version.
func (r *Repository) catchUp(ctx context.Context, agg *Aggregate) (*Aggregate, []RecordedEvent, error) {
	streamID := agg.StreamID()

	stored, err := r.adapter.Load(ctx, streamID, agg.version+1)
	if err != nil {
		return nil, nil, err
	}

	records := make([]RecordedEvent, 0, len(stored))
	for _, s := range stored {
		next := agg.version + 1
		if s.Version-1 != next {
			return nil, nil, &InconsistentStreamError{
				StreamID:        streamID,
				ExpectedVersion: next,
				ActualVersion:   s.Version - 1,
			}
		}

		props, err := r.serializer.Deserialize(s.Data, s.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("ferret: failed to deserialize event at version %d: %w", next, err)
		}

		event := Event{Type: s.Type, Properties: props}
		agg = agg.ApplyCommitted(event)
		records = append(records, recordedFromStored(s, event))
	}

	return agg, records, nil
}

func recordedFromStored(s adapters.StoredEvent, event Event) RecordedEvent {
	return RecordedEvent{
		Event:          event,
		ID:             s.ID,
		StreamID:       s.StreamID,
		Version:        s.Version - 1,
		GlobalPosition: s.GlobalPosition,
		Timestamp:      s.Timestamp,
		Metadata:       metadataFromRecord(s.Metadata),
	}
}
