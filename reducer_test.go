package ferret

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func incrementReducer(state Properties, _ Event) Properties {
	state["count"] = state.Int("count") + 1
	return state
}

func TestReducerRegistry_Apply(t *testing.T) {
	t.Run("folds registered events", func(t *testing.T) {
		r := NewReducerRegistry()
		r.Register("incremented", incrementReducer)

		state := r.Apply(Properties{"count": 1}, NewEvent("incremented", nil))

		assert.Equal(t, int64(2), state.Int("count"))
	})

	t.Run("unknown event is identity", func(t *testing.T) {
		r := NewReducerRegistry()
		state := Properties{"count": 1}

		next := r.Apply(state, NewEvent("renamed", nil))

		assert.Equal(t, state, next)
	})

	t.Run("input state is not modified", func(t *testing.T) {
		r := NewReducerRegistry()
		r.Register("incremented", incrementReducer)
		state := Properties{"count": 1}

		_ = r.Apply(state, NewEvent("incremented", nil))

		assert.Equal(t, 1, state["count"])
	})

	t.Run("nil result becomes empty state", func(t *testing.T) {
		r := NewReducerRegistry()
		r.Register("cleared", func(Properties, Event) Properties { return nil })

		next := r.Apply(Properties{"count": 1}, NewEvent("cleared", nil))

		assert.NotNil(t, next)
		assert.Empty(t, next)
	})

	t.Run("deterministic", func(t *testing.T) {
		r := NewReducerRegistry()
		r.Register("incremented", incrementReducer)
		state := Properties{"count": 3}
		event := NewEvent("incremented", nil)

		assert.Equal(t, r.Apply(state, event), r.Apply(state, event))
	})
}

func TestReducerRegistry_Register(t *testing.T) {
	t.Run("panics on empty tag", func(t *testing.T) {
		assert.Panics(t, func() { NewReducerRegistry().Register("", incrementReducer) })
	})

	t.Run("panics on nil reducer", func(t *testing.T) {
		assert.Panics(t, func() { NewReducerRegistry().Register("incremented", nil) })
	})

	t.Run("lists registered types", func(t *testing.T) {
		r := NewReducerRegistry()
		r.Register("b", incrementReducer)
		r.Register("a", incrementReducer)

		assert.Equal(t, []string{"a", "b"}, r.EventTypes())
		assert.Equal(t, 2, r.Count())
		assert.True(t, r.Has("a"))
		assert.False(t, r.Has("c"))
	})
}
