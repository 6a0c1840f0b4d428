package ferret

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
)

// testDomain is a small counter domain shared by the package tests.
type testDomain struct {
	counter     *AggregateType
	incremented *EventType
	renamed     *EventType
	increment   *CommandType
}

func newTestDomain(limit int64) *testDomain {
	d := &testDomain{counter: NewAggregateType("counter", "name")}

	d.incremented = d.counter.Event("incremented", func(state Properties, e Event) Properties {
		by := e.Properties.Int("by")
		if by == 0 {
			by = 1
		}
		state["count"] = state.Int("count") + by
		return state
	})
	d.renamed = d.counter.Event("renamed", func(state Properties, e Event) Properties {
		state["label"] = e.Properties.String("label")
		return state
	})

	d.increment = NewCommandType("increment", KeyLocator(d.counter), func(agg *Aggregate, cmd Command) Decision {
		if agg.State().Int("count") >= limit {
			return Reject("limit reached")
		}
		return Accept(d.incremented.Apply(agg, nil))
	})

	return d
}

func (d *testDomain) agg(name string) *Aggregate {
	agg, err := d.counter.New(Properties{"name": name})
	if err != nil {
		panic(err)
	}
	return agg
}

// scriptedAdapter wraps an adapter and lets tests inject failures.
type scriptedAdapter struct {
	adapters.EventLogAdapter
	appendErr   error
	appendCalls int
	loadHook    func(stored []adapters.StoredEvent) []adapters.StoredEvent
}

func (a *scriptedAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	a.appendCalls++
	if a.appendErr != nil {
		return nil, a.appendErr
	}
	return a.EventLogAdapter.Append(ctx, streamID, events, expectedVersion)
}

func (a *scriptedAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	stored, err := a.EventLogAdapter.Load(ctx, streamID, fromVersion)
	if err != nil || a.loadHook == nil {
		return stored, err
	}
	return a.loadHook(stored), nil
}

// barrierAdapter holds the first parties Loads until all of them have
// arrived, so concurrent transactions are guaranteed to read the same version.
type barrierAdapter struct {
	adapters.EventLogAdapter
	loads   atomic.Int32
	release chan struct{}
	parties int32
}

func newBarrierAdapter(inner adapters.EventLogAdapter, parties int) *barrierAdapter {
	return &barrierAdapter{
		EventLogAdapter: inner,
		release:         make(chan struct{}),
		parties:         int32(parties),
	}
}

func (a *barrierAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	stored, err := a.EventLogAdapter.Load(ctx, streamID, fromVersion)
	n := a.loads.Add(1)
	if n <= a.parties {
		if n == a.parties {
			close(a.release)
		}
		<-a.release
	}
	return stored, err
}

// recordingLogger keeps the messages logged at each level.
type recordingLogger struct {
	mu    sync.Mutex
	debug []string
	info  []string
	warn  []string
	errs  []string
}

func (l *recordingLogger) Debug(msg string, _ ...interface{}) { l.add(&l.debug, msg) }
func (l *recordingLogger) Info(msg string, _ ...interface{})  { l.add(&l.info, msg) }
func (l *recordingLogger) Warn(msg string, _ ...interface{})  { l.add(&l.warn, msg) }
func (l *recordingLogger) Error(msg string, _ ...interface{}) { l.add(&l.errs, msg) }

func (l *recordingLogger) add(level *[]string, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*level = append(*level, msg)
}
