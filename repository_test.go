package ferret

import (
	"context"
	"errors"
	"testing"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/AshkanYarmoradi/go-ferret/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, limit int64, opts ...Option) (*Repository, *testDomain, *memory.MemoryAdapter) {
	t.Helper()
	d := newTestDomain(limit)
	adapter := memory.NewAdapter()
	repo := NewRepository(adapter, append([]Option{WithAggregateTypes(d.counter)}, opts...)...)
	return repo, d, adapter
}

func TestRepository_FetchLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("missing stream yields a new aggregate", func(t *testing.T) {
		repo, d, _ := newTestRepository(t, 10)
		id, _ := d.counter.ID(Properties{"name": "clicks"})

		agg, err := repo.FetchLatest(ctx, id)

		require.NoError(t, err)
		assert.True(t, agg.IsNew())
		assert.Equal(t, Properties{"name": "clicks", "_type": "counter"}, agg.State())
	})

	t.Run("folds committed events", func(t *testing.T) {
		repo, d, _ := newTestRepository(t, 10)
		agg := d.incremented.Apply(d.incremented.Apply(d.agg("clicks"), nil), Properties{"by": 5})
		_, err := repo.Commit(ctx, agg)
		require.NoError(t, err)

		fetched, err := repo.FetchLatest(ctx, agg.ID())

		require.NoError(t, err)
		assert.Equal(t, int64(1), fetched.Version())
		assert.Equal(t, int64(6), fetched.State().Int("count"))
		assert.False(t, fetched.HasPending())
	})

	t.Run("unregistered type", func(t *testing.T) {
		repo := NewRepository(memory.NewAdapter())

		_, err := repo.FetchLatest(ctx, NewAggregateID("counter", Properties{"name": "x"}))

		var typeErr *AggregateTypeNotRegisteredError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, "counter", typeErr.AggregateType)
	})

	t.Run("ID without properties", func(t *testing.T) {
		repo, _, _ := newTestRepository(t, 10)

		_, err := repo.FetchLatest(ctx, AggregateID{Type: "counter"})

		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("misspelled identifying key", func(t *testing.T) {
		repo, _, adapter := newTestRepository(t, 10)

		_, err := repo.FetchLatest(ctx, NewAggregateID("counter", Properties{"nme": "clicks"}))

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "name", validationErr.Field)
		assert.Equal(t, 0, adapter.StreamCount())
	})

	t.Run("extra property does not open a second stream", func(t *testing.T) {
		repo, d, _ := newTestRepository(t, 10)
		_, err := repo.Commit(ctx, d.incremented.Apply(d.agg("clicks"), nil))
		require.NoError(t, err)

		_, err = repo.FetchLatest(ctx, NewAggregateID("counter", Properties{"name": "clicks", "extra": 1}))

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "extra", validationErr.Field)
	})

	t.Run("ID of another type", func(t *testing.T) {
		repo, d, _ := newTestRepository(t, 10)
		other := NewAggregateType("gauge", "name")
		repo.Register(other)

		agg, err := repo.FetchLatest(ctx, NewAggregateID("gauge", Properties{"name": "clicks"}))

		require.NoError(t, err)
		assert.Equal(t, "gauge-name=clicks", agg.StreamID())
		assert.ErrorIs(t, d.counter.CheckID(agg.ID()), ErrValidationFailed)
	})

	t.Run("gap in the stream", func(t *testing.T) {
		d := newTestDomain(10)
		inner := memory.NewAdapter()
		adapter := &scriptedAdapter{EventLogAdapter: inner, loadHook: func(stored []adapters.StoredEvent) []adapters.StoredEvent {
			return stored[1:]
		}}
		repo := NewRepository(adapter, WithAggregateTypes(d.counter))
		_, err := repo.Commit(ctx, d.incremented.Apply(d.incremented.Apply(d.agg("clicks"), nil), nil))
		require.NoError(t, err)

		_, err = repo.FetchLatest(ctx, d.agg("clicks").ID())

		assert.ErrorIs(t, err, ErrInconsistentStream)
		var streamErr *InconsistentStreamError
		require.ErrorAs(t, err, &streamErr)
		assert.Equal(t, int64(0), streamErr.ExpectedVersion)
		assert.Equal(t, int64(1), streamErr.ActualVersion)
	})

	t.Run("duplicate in the stream", func(t *testing.T) {
		d := newTestDomain(10)
		inner := memory.NewAdapter()
		adapter := &scriptedAdapter{EventLogAdapter: inner, loadHook: func(stored []adapters.StoredEvent) []adapters.StoredEvent {
			return append([]adapters.StoredEvent{stored[0]}, stored...)
		}}
		repo := NewRepository(adapter, WithAggregateTypes(d.counter))
		_, err := repo.Commit(ctx, d.incremented.Apply(d.incremented.Apply(d.agg("clicks"), nil), nil))
		require.NoError(t, err)

		_, err = repo.FetchLatest(ctx, d.agg("clicks").ID())

		assert.ErrorIs(t, err, ErrInconsistentStream)
		var streamErr *InconsistentStreamError
		require.ErrorAs(t, err, &streamErr)
		assert.Equal(t, int64(1), streamErr.ExpectedVersion)
		assert.Equal(t, int64(0), streamErr.ActualVersion)
	})

	t.Run("adapter errors propagate", func(t *testing.T) {
		repo, d, adapter := newTestRepository(t, 10)
		require.NoError(t, adapter.Close())

		_, err := repo.FetchLatest(ctx, d.agg("clicks").ID())

		assert.ErrorIs(t, err, ErrAdapterClosed)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		repo, d, adapter := newTestRepository(t, 10)
		_, err := adapter.Append(ctx, "counter-name=clicks", []adapters.EventRecord{{Type: "incremented", Data: []byte("{")}}, adapters.NoStream)
		require.NoError(t, err)

		_, err = repo.FetchLatest(ctx, d.agg("clicks").ID())

		assert.ErrorIs(t, err, ErrSerializationFailed)
	})
}

func TestRepository_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("commits pending events", func(t *testing.T) {
		repo, d, adapter := newTestRepository(t, 10)
		agg := d.incremented.Apply(d.incremented.Apply(d.agg("clicks"), nil), nil)

		result, err := repo.Commit(ctx, agg)

		require.NoError(t, err)
		assert.True(t, result.IsOk())
		require.Len(t, result.Events(), 2)
		assert.Equal(t, int64(1), result.Aggregate().Version())
		assert.False(t, result.Aggregate().HasPending())
		assert.Equal(t, agg.State(), result.Aggregate().State())
		assert.Equal(t, 2, adapter.EventCount())

		records := result.Records()
		require.Len(t, records, 2)
		assert.Equal(t, int64(0), records[0].Version)
		assert.Equal(t, int64(1), records[1].Version)
		assert.Equal(t, "counter-name=clicks", records[0].StreamID)
		assert.NotEmpty(t, records[0].ID)
	})

	t.Run("input aggregate is unchanged", func(t *testing.T) {
		repo, d, _ := newTestRepository(t, 10)
		agg := d.incremented.Apply(d.agg("clicks"), nil)

		_, err := repo.Commit(ctx, agg)

		require.NoError(t, err)
		assert.True(t, agg.HasPending())
		assert.Equal(t, int64(-1), agg.Version())
	})

	t.Run("no pending events is a no-op", func(t *testing.T) {
		d := newTestDomain(10)
		adapter := &scriptedAdapter{EventLogAdapter: memory.NewAdapter()}
		repo := NewRepository(adapter, WithAggregateTypes(d.counter))
		agg := d.agg("clicks")

		result, err := repo.Commit(ctx, agg)

		require.NoError(t, err)
		assert.True(t, result.IsOk())
		assert.Empty(t, result.Events())
		assert.Same(t, agg, result.Aggregate())
		assert.Equal(t, 0, adapter.appendCalls)
	})

	t.Run("stale aggregate conflicts", func(t *testing.T) {
		repo, d, adapter := newTestRepository(t, 10)
		stale := d.agg("clicks")
		_, err := repo.Commit(ctx, d.incremented.Apply(stale, nil))
		require.NoError(t, err)

		pending := d.incremented.Apply(stale, nil)
		result, err := repo.Commit(ctx, pending)

		require.NoError(t, err)
		assert.True(t, result.IsConflict())
		assert.Same(t, pending, result.Aggregate())
		assert.Equal(t, 1, adapter.EventCount())
	})

	t.Run("adapter failure propagates unchanged", func(t *testing.T) {
		d := newTestDomain(10)
		boom := errors.New("disk on fire")
		adapter := &scriptedAdapter{EventLogAdapter: memory.NewAdapter(), appendErr: boom}
		repo := NewRepository(adapter, WithAggregateTypes(d.counter))

		_, err := repo.Commit(ctx, d.incremented.Apply(d.agg("clicks"), nil))

		assert.Same(t, boom, err)
	})

	t.Run("wrapped concurrency error is a conflict", func(t *testing.T) {
		d := newTestDomain(10)
		adapter := &scriptedAdapter{
			EventLogAdapter: memory.NewAdapter(),
			appendErr:       adapters.NewConcurrencyError("counter-name=clicks", 0, 1),
		}
		repo := NewRepository(adapter, WithAggregateTypes(d.counter))

		result, err := repo.Commit(ctx, d.incremented.Apply(d.agg("clicks"), nil))

		require.NoError(t, err)
		assert.True(t, result.IsConflict())
	})

	t.Run("invalid aggregates", func(t *testing.T) {
		repo, _, _ := newTestRepository(t, 10)

		_, err := repo.Commit(ctx, nil)
		assert.ErrorIs(t, err, ErrNilAggregate)

		_, err = repo.Commit(ctx, &Aggregate{})
		assert.ErrorIs(t, err, ErrInvalidAggregate)
	})

	t.Run("aggregate without its identifying keys", func(t *testing.T) {
		repo, d, adapter := newTestRepository(t, 10)
		agg := d.counter.Empty(NewAggregateID("counter", Properties{"nme": "clicks"}))

		_, err := repo.Commit(ctx, d.incremented.Apply(agg, nil))

		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.Equal(t, 0, adapter.EventCount())
	})

	t.Run("unregistered type", func(t *testing.T) {
		d := newTestDomain(10)
		repo := NewRepository(memory.NewAdapter())

		_, err := repo.Commit(ctx, d.incremented.Apply(d.agg("clicks"), nil))

		assert.ErrorIs(t, err, ErrAggregateTypeNotRegistered)
	})

	t.Run("stamps context metadata", func(t *testing.T) {
		repo, d, adapter := newTestRepository(t, 10)
		ctx := ContextWithMetadata(ctx, Metadata{CorrelationID: "corr", UserID: "alice"})

		result, err := repo.Commit(ctx, d.incremented.Apply(d.agg("clicks"), nil))
		require.NoError(t, err)

		assert.Equal(t, "corr", result.Records()[0].Metadata.CorrelationID)
		stored, err := adapter.Load(ctx, "counter-name=clicks", 0)
		require.NoError(t, err)
		assert.Equal(t, "alice", stored[0].Metadata.UserID)
	})

	t.Run("logs lost races", func(t *testing.T) {
		logger := &recordingLogger{}
		repo, d, _ := newTestRepository(t, 10, WithLogger(logger))
		stale := d.agg("clicks")
		_, err := repo.Commit(ctx, d.incremented.Apply(stale, nil))
		require.NoError(t, err)

		_, err = repo.Commit(ctx, d.incremented.Apply(stale, nil))
		require.NoError(t, err)

		assert.Contains(t, logger.debug, "Commit lost race")
	})
}

func TestRepository_Refresh(t *testing.T) {
	ctx := context.Background()
	repo, d, _ := newTestRepository(t, 10)
	held := d.agg("clicks")
	_, err := repo.Commit(ctx, d.incremented.Apply(held, nil))
	require.NoError(t, err)

	t.Run("catches up from the held version", func(t *testing.T) {
		refreshed, err := repo.Refresh(ctx, held)

		require.NoError(t, err)
		assert.Equal(t, int64(0), refreshed.Version())
		assert.Equal(t, int64(1), refreshed.State().Int("count"))
	})

	t.Run("up to date aggregate is unchanged", func(t *testing.T) {
		latest, err := repo.FetchLatest(ctx, held.ID())
		require.NoError(t, err)

		refreshed, err := repo.Refresh(ctx, latest)

		require.NoError(t, err)
		assert.Equal(t, latest.Version(), refreshed.Version())
		assert.Equal(t, latest.State(), refreshed.State())
	})

	t.Run("pending events are refused", func(t *testing.T) {
		_, err := repo.Refresh(ctx, d.incremented.Apply(held, nil))

		assert.ErrorIs(t, err, ErrPendingEvents)
	})

	t.Run("nil aggregate", func(t *testing.T) {
		_, err := repo.Refresh(ctx, nil)

		assert.ErrorIs(t, err, ErrNilAggregate)
	})

	t.Run("invalid aggregate", func(t *testing.T) {
		_, err := repo.Refresh(ctx, &Aggregate{})

		assert.ErrorIs(t, err, ErrInvalidAggregate)
	})
}

func TestRepository_History(t *testing.T) {
	ctx := context.Background()
	repo, d, _ := newTestRepository(t, 10)
	agg := d.renamed.Apply(d.incremented.Apply(d.agg("clicks"), nil), Properties{"label": "Clicks"})
	_, err := repo.Commit(ctx, agg)
	require.NoError(t, err)

	history, err := repo.History(ctx, agg.ID())

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "incremented", history[0].Type)
	assert.Equal(t, "renamed", history[1].Type)
	assert.Equal(t, "Clicks", history[1].Properties.String("label"))
	assert.Equal(t, int64(1), history[1].Version)

	info, err := repo.StreamInfo(ctx, agg.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.EventCount)
}

func TestNewRepository_Defaults(t *testing.T) {
	adapter := memory.NewAdapter()
	types := NewTypeRegistry()

	repo := NewRepository(adapter, WithTypeRegistry(types))

	assert.Same(t, adapter, repo.Adapter())
	assert.Same(t, types, repo.Types())
	assert.IsType(t, &JSONSerializer{}, repo.Serializer())
}
