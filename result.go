package ferret

// Outcome is the kind of a Result.
type Outcome int

const (
	// OutcomeOk means the command was accepted and its events are in the log.
	OutcomeOk Outcome = iota

	// OutcomeRejected means the handler refused the command. The log is untouched.
	OutcomeRejected

	// OutcomeConflict means another writer extended the stream first.
	// Nothing was written.
	OutcomeConflict
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Result is the outcome of a commit or a transaction: exactly one of
// Ok, Rejected or Conflict.
type Result struct {
	outcome   Outcome
	events    []Event
	records   []RecordedEvent
	aggregate *Aggregate
	reason    string
}

// Ok returns a successful result carrying the committed events and the
// aggregate as it now stands in the log.
func Ok(events []Event, agg *Aggregate) Result {
	return Result{outcome: OutcomeOk, events: events, aggregate: agg}
}

// Rejected returns the result of a refused command.
func Rejected(reason string, agg *Aggregate) Result {
	return Result{outcome: OutcomeRejected, reason: reason, aggregate: agg}
}

// Conflict returns the result of a lost optimistic concurrency race.
// agg is the aggregate as the caller held it.
func Conflict(agg *Aggregate) Result {
	return Result{outcome: OutcomeConflict, aggregate: agg}
}

// Outcome returns which variant the result is.
func (r Result) Outcome() Outcome {
	return r.outcome
}

// IsOk reports whether the events were committed.
func (r Result) IsOk() bool {
	return r.outcome == OutcomeOk
}

// IsRejected reports whether the handler refused the command.
func (r Result) IsRejected() bool {
	return r.outcome == OutcomeRejected
}

// IsConflict reports whether the commit lost a race.
func (r Result) IsConflict() bool {
	return r.outcome == OutcomeConflict
}

// Events returns the committed events of an Ok result.
func (r Result) Events() []Event {
	return r.events
}

// Records returns the committed events as the log recorded them.
// It is empty for a no-op commit and for results other than Ok.
func (r Result) Records() []RecordedEvent {
	return r.records
}

// Aggregate returns the aggregate carried by the result.
func (r Result) Aggregate() *Aggregate {
	return r.aggregate
}

// Reason returns the rejection reason of a Rejected result.
func (r Result) Reason() string {
	return r.reason
}

// Version returns the version of the carried aggregate, or -1 if there is none.
func (r Result) Version() int64 {
	if r.aggregate == nil {
		return -1
	}
	return r.aggregate.Version()
}

func (r Result) withRecords(records []RecordedEvent) Result {
	r.records = records
	return r
}
