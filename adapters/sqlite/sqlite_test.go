package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-ferret/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, opts ...Option) *SQLiteAdapter {
	t.Helper()
	adapter, err := NewAdapter(filepath.Join(t.TempDir(), "events.db"), opts...)
	require.NoError(t, err)
	require.NoError(t, adapter.Initialize(context.Background()))
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func records(types ...string) []adapters.EventRecord {
	out := make([]adapters.EventRecord, len(types))
	for i, typ := range types {
		out[i] = adapters.EventRecord{Type: typ, Data: []byte(`{}`)}
	}
	return out
}

func TestNewAdapter(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := NewAdapter("  ")
		assert.Error(t, err)
	})

	t.Run("in-memory database", func(t *testing.T) {
		ctx := context.Background()
		adapter, err := NewAdapter(":memory:")
		require.NoError(t, err)
		defer adapter.Close()
		require.NoError(t, adapter.Initialize(ctx))

		_, err = adapter.Append(ctx, "counter-name=a", records("incremented"), adapters.NoStream)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "counter-name=a", 0)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("initialize is idempotent", func(t *testing.T) {
		adapter := newTestAdapter(t)
		assert.NoError(t, adapter.Initialize(context.Background()))
	})
}

func TestSQLiteAdapter_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("append to new stream", func(t *testing.T) {
		fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		adapter := newTestAdapter(t, WithClock(func() time.Time { return fixed }))

		stored, err := adapter.Append(ctx, "counter-name=a", records("incremented", "incremented"), adapters.NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, int64(1), stored[0].Version)
		assert.Equal(t, int64(2), stored[1].Version)
		assert.Equal(t, uint64(1), stored[0].GlobalPosition)
		assert.Equal(t, uint64(2), stored[1].GlobalPosition)
		assert.Equal(t, fixed, stored[0].Timestamp)
		assert.NotEmpty(t, stored[0].ID)
	})

	t.Run("expected version must match", func(t *testing.T) {
		adapter := newTestAdapter(t)
		_, err := adapter.Append(ctx, "counter-name=a", records("a"), adapters.NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "counter-name=a", records("b"), adapters.NoStream)
		assert.ErrorIs(t, err, ErrConcurrencyConflict)

		_, err = adapter.Append(ctx, "counter-name=a", records("b"), 1)
		assert.NoError(t, err)

		events, err := adapter.Load(ctx, "counter-name=a", 0)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("StreamExists on missing stream", func(t *testing.T) {
		adapter := newTestAdapter(t)

		_, err := adapter.Append(ctx, "counter-name=a", records("a"), adapters.StreamExists)

		assert.ErrorIs(t, err, ErrStreamNotFound)
	})

	t.Run("argument validation", func(t *testing.T) {
		adapter := newTestAdapter(t)

		_, err := adapter.Append(ctx, "", records("a"), adapters.AnyVersion)
		assert.ErrorIs(t, err, ErrEmptyStreamID)

		_, err = adapter.Append(ctx, "s-1", nil, adapters.AnyVersion)
		assert.ErrorIs(t, err, ErrNoEvents)
	})

	t.Run("metadata round trip", func(t *testing.T) {
		adapter := newTestAdapter(t)
		record := adapters.EventRecord{
			Type:     "a",
			Data:     []byte(`{"n":1}`),
			Metadata: adapters.Metadata{CorrelationID: "corr", Custom: map[string]string{"k": "v"}},
		}

		_, err := adapter.Append(ctx, "s-1", []adapters.EventRecord{record}, adapters.NoStream)
		require.NoError(t, err)

		events, err := adapter.Load(ctx, "s-1", 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "corr", events[0].Metadata.CorrelationID)
		assert.Equal(t, "v", events[0].Metadata.Custom["k"])
		assert.Equal(t, `{"n":1}`, string(events[0].Data))
	})

	t.Run("concurrent appends at the same expected version", func(t *testing.T) {
		adapter := newTestAdapter(t)
		const writers = 4

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, conflicted := 0, 0
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := adapter.Append(ctx, "s-1", records("a"), adapters.NoStream)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, ErrConcurrencyConflict):
					conflicted++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, writers-1, conflicted)
	})
}

func TestSQLiteAdapter_Load(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)
	_, err := adapter.Append(ctx, "s-1", records("a", "b", "c"), adapters.NoStream)
	require.NoError(t, err)

	t.Run("loads strictly after fromVersion", func(t *testing.T) {
		events, err := adapter.Load(ctx, "s-1", 1)

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "b", events[0].Type)
		assert.Equal(t, int64(2), events[0].Version)
	})

	t.Run("missing stream returns empty slice", func(t *testing.T) {
		events, err := adapter.Load(ctx, "s-2", 0)

		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("empty stream ID", func(t *testing.T) {
		_, err := adapter.Load(ctx, "", 0)
		assert.ErrorIs(t, err, ErrEmptyStreamID)
	})
}

func TestSQLiteAdapter_GetStreamInfo(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	_, err := adapter.GetStreamInfo(ctx, "counter-name=a")
	assert.ErrorIs(t, err, ErrStreamNotFound)

	_, err = adapter.Append(ctx, "counter-name=a", records("a", "b"), adapters.NoStream)
	require.NoError(t, err)

	info, err := adapter.GetStreamInfo(ctx, "counter-name=a")
	require.NoError(t, err)
	assert.Equal(t, "counter", info.Category)
	assert.Equal(t, int64(2), info.Version)
	assert.Equal(t, int64(2), info.EventCount)
}

func TestSQLiteAdapter_Close(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)
	require.NoError(t, adapter.Ping(ctx))

	require.NoError(t, adapter.Close())
	require.NoError(t, adapter.Close())

	_, err := adapter.Append(ctx, "s-1", records("a"), adapters.NoStream)
	assert.ErrorIs(t, err, ErrAdapterClosed)
	_, err = adapter.Load(ctx, "s-1", 0)
	assert.ErrorIs(t, err, ErrAdapterClosed)
	assert.ErrorIs(t, adapter.Ping(ctx), ErrAdapterClosed)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(errors.New("plain")))
	assert.False(t, isUniqueViolation(nil))
}
