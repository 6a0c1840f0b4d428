package ferret

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serializer converts event payloads to and from the bytes stored in the log.
//
// Deserialize must return the payload in normal form (Properties.Normalize);
// events are folded in that form whether new or replayed.
type Serializer interface {
	// Serialize converts an event payload to bytes.
	Serialize(event Event) ([]byte, error)

	// Deserialize converts bytes back to an event payload.
	Deserialize(data []byte, eventType string) (Properties, error)
}

// JSONSerializer is the default Serializer. Integers decode to int64 without
// passing through float64, so large values survive a round trip.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSONSerializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize converts an event payload to JSON bytes. A nil payload is
// written as an empty object.
func (s *JSONSerializer) Serialize(event Event) ([]byte, error) {
	props := event.Properties
	if props == nil {
		props = Properties{}
	}

	data, err := json.Marshal(props)
	if err != nil {
		return nil, NewSerializationError(event.Type, "serialize", err)
	}

	return data, nil
}

// Deserialize converts JSON bytes back to an event payload.
func (s *JSONSerializer) Deserialize(data []byte, eventType string) (Properties, error) {
	if len(data) == 0 {
		return nil, NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var props Properties
	if err := dec.Decode(&props); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}
	return props.Normalize(), nil
}
