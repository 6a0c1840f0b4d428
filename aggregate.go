package ferret

// Aggregate is an event-sourced entity: the fold of its committed events
// followed by its pending ones.
//
// Aggregates are immutable values. Every operation returns a new *Aggregate
// and leaves the receiver untouched, so a handler can never corrupt the copy
// held by its caller.
type Aggregate struct {
	id       AggregateID
	reducers *ReducerRegistry
	version  int64
	state    Properties
	pending  []Event
}

func newAggregate(id AggregateID, reducers *ReducerRegistry) *Aggregate {
	state := id.Props.Clone()
	state[typeKey] = id.Type
	return &Aggregate{
		id:       id,
		reducers: reducers,
		version:  -1,
		state:    state,
	}
}

// ID returns the aggregate's identity.
func (a *Aggregate) ID() AggregateID {
	return a.id
}

// Type returns the aggregate type tag.
func (a *Aggregate) Type() string {
	return a.id.Type
}

// StreamID returns the log key of the aggregate's stream.
func (a *Aggregate) StreamID() string {
	return a.id.StreamID()
}

// Version returns the offset of the last committed event, or -1 if the
// aggregate has no committed history.
func (a *Aggregate) Version() int64 {
	return a.version
}

// State returns a copy of the current state.
func (a *Aggregate) State() Properties {
	return a.state.Clone()
}

// Pending returns a copy of the events applied but not yet committed.
func (a *Aggregate) Pending() []Event {
	if len(a.pending) == 0 {
		return nil
	}
	out := make([]Event, len(a.pending))
	copy(out, a.pending)
	return out
}

// IsNew reports whether the aggregate has no committed history.
func (a *Aggregate) IsNew() bool {
	return a.version == -1
}

// HasPending reports whether there are events waiting to be committed.
func (a *Aggregate) HasPending() bool {
	return len(a.pending) > 0
}

// Exists returns the aggregate and true if it has committed history.
func (a *Aggregate) Exists() (*Aggregate, bool) {
	if a.IsNew() {
		return nil, false
	}
	return a, true
}

// ApplyNew folds a freshly produced event into the state and queues it for
// commit. The version is unchanged. The payload is folded and queued in
// normal form, the form it has when read back from the log.
func (a *Aggregate) ApplyNew(event Event) *Aggregate {
	event.Properties = event.Properties.Normalize()
	next := a.clone()
	next.state = a.reducers.Apply(a.state, event)
	next.pending = append(next.pending, event)
	return next
}

// ApplyCommitted folds an event read from the log and advances the version.
// It must only be used on aggregates without pending events.
func (a *Aggregate) ApplyCommitted(event Event) *Aggregate {
	event.Properties = event.Properties.Normalize()
	next := a.clone()
	next.state = a.reducers.Apply(a.state, event)
	next.version++
	return next
}

// committed returns the aggregate as it is once its pending events are in the log.
func (a *Aggregate) committed() *Aggregate {
	next := a.clone()
	next.version += int64(len(a.pending))
	next.pending = nil
	return next
}

// valid reports whether the aggregate was built by an AggregateType.
func (a *Aggregate) valid() bool {
	return a != nil && a.reducers != nil && a.id.Type != ""
}

func (a *Aggregate) clone() *Aggregate {
	next := *a
	if len(a.pending) > 0 {
		next.pending = make([]Event, len(a.pending), len(a.pending)+1)
		copy(next.pending, a.pending)
	}
	return &next
}
