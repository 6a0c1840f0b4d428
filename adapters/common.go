package adapters

import (
	"fmt"
	"strings"
)

// Version constants for optimistic concurrency control.
const (
	// AnyVersion skips version checking.
	AnyVersion int64 = -1

	// NoStream requires the stream to not exist.
	NoStream int64 = 0

	// StreamExists requires the stream to exist.
	StreamExists int64 = -2
)

// ExtractCategory extracts the category from a stream ID.
// Stream IDs follow the format "Category-ID"; the category is the portion
// before the first hyphen.
//
//   - "counter-name=c1" returns "counter"
//   - "user-email=a%40b.com" returns "user"
//   - "NoHyphen" returns "NoHyphen"
//   - "" returns ""
func ExtractCategory(streamID string) string {
	if streamID == "" {
		return ""
	}
	parts := strings.SplitN(streamID, "-", 2)
	return parts[0]
}

// ConcurrencyError describes a failed conditional append.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		StreamID:        streamID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("ferret: concurrency conflict on stream %q: expected version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is reports whether target is ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// StreamNotFoundError describes a missing stream.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError creates a new StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

// Error implements the error interface.
func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("ferret: stream %q not found", e.StreamID)
}

// Is reports whether target is ErrStreamNotFound.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound
}

// CheckVersion validates the expected version against the current version.
// It is the compare half of every adapter's compare-and-append and must be
// called while the adapter holds whatever makes the append atomic.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch expected {
	case AnyVersion:
		return nil
	case NoStream:
		if exists {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	case StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	default:
		if expected < 0 {
			return ErrInvalidVersion
		}
		if current != expected {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	}
}

// ValidateAppend checks the arguments shared by every Append implementation.
func ValidateAppend(streamID string, events []EventRecord) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	return nil
}
