package ferret

import (
	"fmt"
	"sort"
	"sync"
)

// AggregateType declares a kind of aggregate: its type tag, the names of its
// identifying properties, and the reducers of its events.
type AggregateType struct {
	name     string
	keys     []string
	reducers *ReducerRegistry
}

// NewAggregateType declares an aggregate type identified by keys.
// It panics if name is not a valid type tag or no key is given.
func NewAggregateType(name string, keys ...string) *AggregateType {
	if err := validateTypeTag(name); err != nil {
		panic(err.Error())
	}
	if len(keys) == 0 {
		panic(fmt.Sprintf("ferret: aggregate type %q needs at least one identifying key", name))
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || k == typeKey || seen[k] {
			panic(fmt.Sprintf("ferret: aggregate type %q has an invalid key %q", name, k))
		}
		seen[k] = true
	}

	return &AggregateType{
		name:     name,
		keys:     append([]string(nil), keys...),
		reducers: NewReducerRegistry(),
	}
}

// Name returns the type tag.
func (t *AggregateType) Name() string {
	return t.name
}

// Keys returns the identifying property names.
func (t *AggregateType) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Reducers returns the type's reducer registry.
func (t *AggregateType) Reducers() *ReducerRegistry {
	return t.reducers
}

// ID extracts the aggregate identity from props. Every identifying key must
// be present; other properties are ignored.
func (t *AggregateType) ID(props Properties) (AggregateID, error) {
	id := make(Properties, len(t.keys))
	for _, k := range t.keys {
		v, ok := props[k]
		if !ok || v == nil {
			return AggregateID{}, NewValidationError(t.name, k, "identifying property is required")
		}
		id[k] = NormalizeValue(v)
	}
	return AggregateID{Type: t.name, Props: id}, nil
}

// CheckID reports whether id names an aggregate of this type: the type tag
// matches and its properties are exactly the identifying keys.
func (t *AggregateType) CheckID(id AggregateID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if id.Type != t.name {
		return NewValidationError(t.name, "type", fmt.Sprintf("aggregate ID is of type %q", id.Type))
	}
	if _, err := t.ID(id.Props); err != nil {
		return err
	}
	if len(id.Props) == len(t.keys) {
		return nil
	}

	extra := make([]string, 0, len(id.Props))
	for k := range id.Props {
		if !t.hasKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return NewValidationError(t.name, extra[0], "not an identifying property")
}

func (t *AggregateType) hasKey(name string) bool {
	for _, k := range t.keys {
		if k == name {
			return true
		}
	}
	return false
}

// Empty returns the aggregate with no history for id. Properties of id that
// are not identifying keys are dropped.
func (t *AggregateType) Empty(id AggregateID) *Aggregate {
	props := make(Properties, len(t.keys))
	for _, k := range t.keys {
		if v, ok := id.Props[k]; ok {
			props[k] = v
		}
	}
	return newAggregate(NewAggregateID(t.name, props), t.reducers)
}

// New returns the aggregate with no history identified by props.
func (t *AggregateType) New(props Properties) (*Aggregate, error) {
	id, err := t.ID(props)
	if err != nil {
		return nil, err
	}
	return t.Empty(id), nil
}

// Event declares an event of this aggregate type and registers its reducer.
func (t *AggregateType) Event(name string, reducer Reducer) *EventType {
	t.reducers.Register(name, reducer)
	return &EventType{name: name, aggType: t}
}

// EventType declares one event of an aggregate type.
type EventType struct {
	name    string
	aggType *AggregateType
}

// Name returns the event type tag.
func (e *EventType) Name() string {
	return e.name
}

// AggregateType returns the aggregate type the event belongs to.
func (e *EventType) AggregateType() *AggregateType {
	return e.aggType
}

// New builds an event for agg. The aggregate's identifying properties are
// merged into the payload, which is kept in normal form.
func (e *EventType) New(agg *Aggregate, props Properties) Event {
	return Event{Type: e.name, Properties: props.Merge(agg.ID().Props).Normalize()}
}

// Apply builds an event for agg and applies it as a new event.
func (e *EventType) Apply(agg *Aggregate, props Properties) *Aggregate {
	return agg.ApplyNew(e.New(agg, props))
}

// TypeRegistry maps aggregate type tags to their declarations.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*AggregateType
}

// NewTypeRegistry creates a registry holding types.
func NewTypeRegistry(types ...*AggregateType) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]*AggregateType)}
	r.Register(types...)
	return r
}

// Register adds aggregate types, replacing any with the same tag.
func (r *TypeRegistry) Register(types ...*AggregateType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		if t == nil {
			panic("ferret: nil aggregate type")
		}
		r.types[t.name] = t
	}
}

// Lookup returns the aggregate type registered for name.
func (r *TypeRegistry) Lookup(name string) (*AggregateType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type tags in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
