package ferret

import (
	"net/url"
	"strings"
)

// typeKey is the reserved state key holding the aggregate type tag.
const typeKey = "_type"

// AggregateID identifies an aggregate instance: a type tag plus the
// identifying properties declared by its AggregateType.
//
// Identity is textual. Two IDs are equal, and share a stream, when their
// values render the same in the stream ID, so {"seat": 12}, {"seat": 12.0}
// and {"seat": "12"} all name the same aggregate. Keep the Go type of an
// identifying property consistent if that is not wanted.
type AggregateID struct {
	Type  string
	Props Properties
}

// NewAggregateID creates an AggregateID. props is copied in normal form.
func NewAggregateID(aggType string, props Properties) AggregateID {
	return AggregateID{Type: aggType, Props: props.Normalize()}
}

// IsZero reports whether the AggregateID is empty.
func (id AggregateID) IsZero() bool {
	return id.Type == "" && len(id.Props) == 0
}

// Validate checks if the AggregateID can name a stream.
func (id AggregateID) Validate() error {
	if err := validateTypeTag(id.Type); err != nil {
		return err
	}
	if len(id.Props) == 0 {
		return NewValidationError(id.Type, "", "aggregate ID has no identifying properties")
	}
	return nil
}

// Equal reports whether two IDs name the same aggregate. Values are compared
// by the form they take in the stream ID, so 3, 3.0 and "3" are equal.
func (id AggregateID) Equal(other AggregateID) bool {
	if id.Type != other.Type || len(id.Props) != len(other.Props) {
		return false
	}
	for k, v := range id.Props {
		ov, ok := other.Props[k]
		if !ok || formatValue(v) != formatValue(ov) {
			return false
		}
	}
	return true
}

// StreamID returns the canonical log key: "<type>-<k1>=<v1>&<k2>=<v2>" with
// keys sorted and keys and values query-escaped.
func (id AggregateID) StreamID() string {
	values := make(url.Values, len(id.Props))
	for k, v := range id.Props {
		values.Set(k, formatValue(v))
	}
	return id.Type + "-" + values.Encode()
}

// String returns the stream ID.
func (id AggregateID) String() string {
	return id.StreamID()
}

func validateTypeTag(tag string) error {
	if tag == "" {
		return NewValidationError(tag, "type", "type tag is required")
	}
	if strings.Contains(tag, "-") {
		return NewValidationError(tag, "type", "type tag must not contain '-'")
	}
	if tag == typeKey {
		return NewValidationError(tag, "type", "type tag is reserved")
	}
	return nil
}
