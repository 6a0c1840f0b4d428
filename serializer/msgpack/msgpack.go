// Package msgpack provides a MessagePack serializer for ferret event payloads.
//
// MessagePack is a binary format that produces smaller payloads than JSON
// while keeping the same open map shape.
//
//	repo := ferret.NewRepository(adapter, ferret.WithSerializer(msgpack.NewSerializer()))
package msgpack

import (
	"bytes"
	"fmt"

	"github.com/AshkanYarmoradi/go-ferret"
	"github.com/vmihailenco/msgpack/v5"
)

// Ensure Serializer implements ferret.Serializer.
var _ ferret.Serializer = (*Serializer)(nil)

// Serializer is a MessagePack implementation of ferret.Serializer.
type Serializer struct {
	sortKeys bool
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithSortedKeys writes map keys in sorted order so equal payloads encode
// to equal bytes.
func WithSortedKeys() SerializerOption {
	return func(s *Serializer) {
		s.sortKeys = true
	}
}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize converts an event payload to MessagePack bytes.
func (s *Serializer) Serialize(event ferret.Event) ([]byte, error) {
	props := map[string]interface{}(event.Properties)
	if props == nil {
		props = map[string]interface{}{}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(s.sortKeys)
	if err := enc.Encode(props); err != nil {
		return nil, ferret.NewSerializationError(event.Type, "serialize", fmt.Errorf("msgpack: %w", err))
	}

	return buf.Bytes(), nil
}

// Deserialize converts MessagePack bytes back to an event payload in
// normal form.
func (s *Serializer) Deserialize(data []byte, eventType string) (ferret.Properties, error) {
	if len(data) == 0 {
		return nil, ferret.NewSerializationError(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	var props map[string]interface{}
	if err := msgpack.Unmarshal(data, &props); err != nil {
		return nil, ferret.NewSerializationError(eventType, "deserialize", fmt.Errorf("msgpack: %w", err))
	}
	return ferret.Properties(props).Normalize(), nil
}
