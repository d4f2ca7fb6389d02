package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indigo-web/keel/http"
)

func TestContentQueue(t *testing.T) {
	t.Run("chunks are delivered in arrival order", func(t *testing.T) {
		q := NewContentQueue(nil, nil)
		q.Push(http.DataChunk([]byte("first"), false))
		q.Push(http.DataChunk([]byte("second"), false))

		require.True(t, q.NeedContent())
		require.Equal(t, "first", string(q.ProduceContent().Data))
		require.Equal(t, "second", string(q.ProduceContent().Data))
		require.True(t, q.ProduceContent().Zero())
	})

	t.Run("special chunk is sticky", func(t *testing.T) {
		q := NewContentQueue(nil, nil)
		q.Push(http.DataChunk([]byte("data"), false))
		q.Eof()

		require.Equal(t, "data", string(q.ProduceContent().Data))
		require.True(t, q.ProduceContent().EOF)
		require.True(t, q.ProduceContent().EOF)
		require.True(t, q.NeedContent())
	})

	t.Run("data is never reordered after a special", func(t *testing.T) {
		q := NewContentQueue(nil, nil)
		q.Push(http.DataChunk([]byte("tail"), false))
		q.Failed(errors.New("boom"))

		require.Equal(t, "tail", string(q.ProduceContent().Data))
		require.Error(t, q.ProduceContent().Err)
	})

	t.Run("demand is idempotent", func(t *testing.T) {
		demands := 0
		q := NewContentQueue(func() { demands++ }, nil)

		require.False(t, q.NeedContent())
		require.False(t, q.NeedContent())
		require.Equal(t, 1, demands)
	})

	t.Run("synchronously satisfied demand", func(t *testing.T) {
		var q *ContentQueue
		q = NewContentQueue(nil, nil)
		q.Bind(func() { q.Push(http.DataChunk([]byte("sync"), false)) }, nil)

		require.True(t, q.NeedContent())
		require.Equal(t, "sync", string(q.ProduceContent().Data))
	})

	t.Run("arrival wakes a pending demand", func(t *testing.T) {
		woken := 0
		q := NewContentQueue(func() {}, func() bool { woken++; return true })

		require.False(t, q.NeedContent())
		require.True(t, q.Push(http.DataChunk([]byte("late"), false)))
		require.Equal(t, 1, woken)

		// no demand pending anymore: no spurious wake-ups
		q.Push(http.DataChunk([]byte("more"), false))
		require.Equal(t, 1, woken)
	})

	t.Run("eof wakes a pending demand", func(t *testing.T) {
		woken := false
		q := NewContentQueue(func() {}, func() bool { woken = true; return true })

		require.False(t, q.NeedContent())
		require.True(t, q.Eof())
		require.True(t, woken)
	})

	t.Run("failAllContent reports whether EOF was seen", func(t *testing.T) {
		q := NewContentQueue(nil, nil)
		q.Push(http.DataChunk([]byte("queued"), false))

		require.False(t, q.FailAllContent(errors.New("boom")))
		require.Error(t, q.ProduceContent().Err)

		q = NewContentQueue(nil, nil)
		q.Eof()
		require.True(t, q.FailAllContent(errors.New("boom")))
	})

	t.Run("consumeAll succeeds only on clean EOF", func(t *testing.T) {
		q := NewContentQueue(nil, nil)
		q.Push(http.DataChunk([]byte("unread"), false))
		require.False(t, q.ConsumeAll())

		q.Eof()
		require.True(t, q.ConsumeAll())

		q = NewContentQueue(nil, nil)
		q.Failed(errors.New("boom"))
		require.False(t, q.ConsumeAll())
	})

	t.Run("late data after a special is dropped", func(t *testing.T) {
		q := NewContentQueue(nil, nil)
		q.Eof()
		require.False(t, q.Push(http.DataChunk([]byte("late"), false)))
		require.True(t, q.ProduceContent().EOF)
	})
}
