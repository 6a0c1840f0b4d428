// Package protobuf provides a Protocol Buffers serializer for ferret event payloads.
//
// By default a payload is written as a google.protobuf.Struct. Event types
// with a fixed schema can be bound to a generated message; their payloads
// are then written in that message's compact wire format and checked
// against its fields.
//
//	s := protobuf.NewSerializer()
//	s.MustRegister("order-placed", &pb.OrderPlaced{})
//
//	repo := ferret.NewRepository(adapter, ferret.WithSerializer(s))
//
// Struct values are JSON numbers on the wire, so integers above 2^53 lose
// precision and come back as float64.
package protobuf

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/AshkanYarmoradi/go-ferret"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrNotProtoMessage indicates a registered type does not implement proto.Message.
	ErrNotProtoMessage = errors.New("ferret/protobuf: type must implement proto.Message")
)

// Ensure Serializer implements ferret.Serializer.
var _ ferret.Serializer = (*Serializer)(nil)

// SerializerOption configures the Serializer.
type SerializerOption func(*Serializer)

// WithRegistry binds event types to message types up front.
func WithRegistry(registry map[string]proto.Message) SerializerOption {
	return func(s *Serializer) {
		for name, msg := range registry {
			s.registry[name] = reflect.TypeOf(msg).Elem()
		}
	}
}

// Serializer implements ferret.Serializer using Protocol Buffers.
type Serializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
	marshal  proto.MarshalOptions
}

// NewSerializer creates a new Protocol Buffers serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{
		registry: make(map[string]reflect.Type),
		marshal:  proto.MarshalOptions{Deterministic: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds an event type to a message type. A later registration
// for the same event type replaces the earlier one.
func (s *Serializer) Register(eventType string, msg proto.Message) error {
	if msg == nil {
		return ferret.NewSerializationError(eventType, "register", ErrNotProtoMessage)
	}
	typ := reflect.TypeOf(msg)
	if typ.Kind() != reflect.Ptr {
		return ferret.NewSerializationError(eventType, "register", ErrNotProtoMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry[eventType] = typ.Elem()
	return nil
}

// MustRegister registers a message type and panics on error.
func (s *Serializer) MustRegister(eventType string, msg proto.Message) {
	if err := s.Register(eventType, msg); err != nil {
		panic(err)
	}
}

// RegisteredTypes returns the bound event types in sorted order.
func (s *Serializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for name := range s.registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

func (s *Serializer) lookup(eventType string) (proto.Message, bool) {
	s.mu.RLock()
	typ, ok := s.registry[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	msg, ok := reflect.New(typ).Interface().(proto.Message)
	return msg, ok
}

// Serialize converts an event payload to Protocol Buffers binary format.
func (s *Serializer) Serialize(event ferret.Event) ([]byte, error) {
	st, err := structpb.NewStruct(normalizeMap(event.Properties))
	if err != nil {
		return nil, ferret.NewSerializationError(event.Type, "serialize", err)
	}

	msg, typed := s.lookup(event.Type)
	if !typed {
		msg = st
	} else {
		raw, err := protojson.Marshal(st)
		if err != nil {
			return nil, ferret.NewSerializationError(event.Type, "serialize", err)
		}
		if err := protojson.Unmarshal(raw, msg); err != nil {
			return nil, ferret.NewSerializationError(event.Type, "serialize", err)
		}
	}

	data, err := s.marshal.Marshal(msg)
	if err != nil {
		return nil, ferret.NewSerializationError(event.Type, "serialize", err)
	}
	return data, nil
}

// Deserialize converts Protocol Buffers binary data back to an event payload.
// Empty data is a valid encoding of an empty payload.
func (s *Serializer) Deserialize(data []byte, eventType string) (ferret.Properties, error) {
	msg, typed := s.lookup(eventType)
	if !typed {
		st := &structpb.Struct{}
		if err := proto.Unmarshal(data, st); err != nil {
			return nil, ferret.NewSerializationError(eventType, "deserialize", err)
		}
		return ferret.Properties(st.AsMap()).Normalize(), nil
	}

	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, ferret.NewSerializationError(eventType, "deserialize", err)
	}
	raw, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	if err != nil {
		return nil, ferret.NewSerializationError(eventType, "deserialize", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, ferret.NewSerializationError(eventType, "deserialize", err)
	}
	return ferret.Properties(st.AsMap()).Normalize(), nil
}

// normalizeMap rewrites values structpb cannot take directly.
func normalizeMap(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case ferret.Properties:
		return normalizeMap(val)
	case map[string]interface{}:
		return normalizeMap(val)
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}
