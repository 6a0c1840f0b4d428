package ferret

import (
	"fmt"
	"sort"
	"sync"
)

// Reducer folds one event into an aggregate's state and returns the new state.
// Reducers must be pure and total: the same state and event always produce
// the same result, and no input may fail.
type Reducer func(state Properties, event Event) Properties

// ReducerRegistry maps event type tags to reducers.
type ReducerRegistry struct {
	mu       sync.RWMutex
	reducers map[string]Reducer
}

// NewReducerRegistry creates a new empty ReducerRegistry.
func NewReducerRegistry() *ReducerRegistry {
	return &ReducerRegistry{
		reducers: make(map[string]Reducer),
	}
}

// Register installs the reducer for eventType, replacing any previous one.
// It panics on an empty tag or a nil reducer; both are wiring mistakes.
func (r *ReducerRegistry) Register(eventType string, reducer Reducer) {
	if eventType == "" {
		panic("ferret: event type tag is required")
	}
	if reducer == nil {
		panic(fmt.Sprintf("ferret: nil reducer for event type %q", eventType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reducers[eventType] = reducer
}

// Apply folds event into state. Events without a reducer leave the state
// unchanged. The reducer receives a copy, so state itself is never modified.
func (r *ReducerRegistry) Apply(state Properties, event Event) Properties {
	r.mu.RLock()
	reducer, ok := r.reducers[event.Type]
	r.mu.RUnlock()

	if !ok {
		return state
	}

	next := reducer(state.Clone(), event)
	if next == nil {
		return Properties{}
	}
	return next
}

// Has reports whether a reducer is registered for eventType.
func (r *ReducerRegistry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.reducers[eventType]
	return ok
}

// EventTypes returns the registered event type tags in sorted order.
func (r *ReducerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.reducers))
	for t := range r.reducers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered reducers.
func (r *ReducerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reducers)
}
