// Package ferret is an event-sourcing aggregate runtime.
//
// An aggregate is the left-fold of the events recorded in its stream. Commands
// are validated against the latest aggregate, produce new events, and are
// committed to an append-only event log under optimistic concurrency. Every
// transaction ends in one of three outcomes: Ok, Rejected or Conflict.
//
// # Declaring a domain
//
//	counter := ferret.NewAggregateType("counter", "name")
//
//	incremented := counter.Event("incremented", func(state ferret.Properties, e ferret.Event) ferret.Properties {
//	    state["count"] = state.Int("count") + 1
//	    return state
//	})
//
//	increment := ferret.NewCommandType("increment", ferret.KeyLocator(counter),
//	    func(agg *ferret.Aggregate, cmd ferret.Command) ferret.Decision {
//	        if agg.State().Int("count") >= 10 {
//	            return ferret.Reject("limit reached")
//	        }
//	        return ferret.Accept(incremented.Apply(agg, nil))
//	    })
//
// # Running commands
//
//	repo := ferret.NewRepository(memory.NewAdapter(), ferret.WithAggregateTypes(counter))
//
//	result, err := increment.Transact(ctx, repo, ferret.Properties{"name": "clicks"})
//	switch {
//	case err != nil:
//	    // programmer error or backend failure
//	case result.IsConflict():
//	    // someone else committed first; decide whether to retry
//	case result.IsRejected():
//	    fmt.Println(result.Reason())
//	}
//
// For production, use the PostgreSQL or SQLite adapters:
//
//	adapter, err := postgres.NewAdapter(connStr)
//	adapter, err := sqlite.NewAdapter("events.db")
package ferret

// version is the library version reported by Version.
const version = "0.3.0"

// Version returns the library version.
func Version() string {
	return version
}

// Logger is the logging interface used by the repository and the engine.
// keysAndValues alternate between string keys and arbitrary values.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger discards everything.
type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}
