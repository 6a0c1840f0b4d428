// Package memory provides an in-memory implementation of the event log adapter.
// This adapter is intended for tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/google/uuid"
)

// Ensure MemoryAdapter implements the adapter interfaces.
var (
	_ adapters.EventLogAdapter = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker   = (*MemoryAdapter)(nil)
)

// MemoryAdapter is an in-memory implementation of EventLogAdapter.
// It is safe for concurrent use; one mutex makes check-and-append atomic.
type MemoryAdapter struct {
	mu             sync.RWMutex
	streams        map[string]*streamData
	globalPosition uint64
	eventCount     int
	closed         bool
	now            func() time.Time
}

type streamData struct {
	info   adapters.StreamInfo
	events []adapters.StoredEvent
}

// Option configures a MemoryAdapter.
type Option func(*MemoryAdapter)

// WithClock overrides the clock used to timestamp events.
func WithClock(now func() time.Time) Option {
	return func(a *MemoryAdapter) {
		a.now = now
	}
}

// NewAdapter creates a new in-memory event log adapter.
func NewAdapter(opts ...Option) *MemoryAdapter {
	adapter := &MemoryAdapter{
		streams: make(map[string]*streamData),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Initialize is a no-op for the memory adapter.
func (a *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events at the end of the stream if its length matches expectedVersion.
func (a *MemoryAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrAdapterClosed
	}

	if err := adapters.ValidateAppend(streamID, events); err != nil {
		return nil, err
	}

	stream, exists := a.streams[streamID]
	currentVersion := int64(0)
	if exists {
		currentVersion = stream.info.Version
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, exists); err != nil {
		return nil, err
	}

	now := a.now()
	if !exists {
		stream = &streamData{
			info: adapters.StreamInfo{
				StreamID:  streamID,
				Category:  adapters.ExtractCategory(streamID),
				CreatedAt: now,
			},
		}
		a.streams[streamID] = stream
	}

	stored := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		a.globalPosition++
		currentVersion++

		stored[i] = adapters.StoredEvent{
			ID:             uuid.New().String(),
			StreamID:       streamID,
			Type:           event.Type,
			Data:           append([]byte(nil), event.Data...),
			Metadata:       event.Metadata,
			Version:        currentVersion,
			GlobalPosition: a.globalPosition,
			Timestamp:      now,
		}
	}

	stream.events = append(stream.events, stored...)
	stream.info.Version = currentVersion
	stream.info.EventCount = int64(len(stream.events))
	stream.info.UpdatedAt = now
	a.eventCount += len(stored)

	return stored, nil
}

// Load returns the events of a stream with a version greater than fromVersion.
func (a *MemoryAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrAdapterClosed
	}

	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return []adapters.StoredEvent{}, nil
	}

	events := make([]adapters.StoredEvent, 0, len(stream.events))
	for _, event := range stream.events {
		if event.Version > fromVersion {
			events = append(events, event)
		}
	}

	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *MemoryAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrAdapterClosed
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}

	info := stream.info
	return &info, nil
}

// Close marks the adapter closed. Later calls fail with ErrAdapterClosed.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	return nil
}

// Ping checks if the adapter is usable.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrAdapterClosed
	}

	return nil
}

// Reset clears all data. Useful for testing.
func (a *MemoryAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streams = make(map[string]*streamData)
	a.globalPosition = 0
	a.eventCount = 0
}

// EventCount returns the total number of events stored.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.eventCount
}

// StreamCount returns the number of streams.
func (a *MemoryAdapter) StreamCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.streams)
}
