package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	t.Run("lookup is case-insensitive", func(t *testing.T) {
		s := New().Add("Content-Type", "text/html")

		require.Equal(t, "text/html", s.Value("content-type"))
		require.True(t, s.Has("CONTENT-TYPE"))
	})

	t.Run("values preserve insertion order", func(t *testing.T) {
		s := New().
			Add("Accept", "text/html").
			Add("Host", "h").
			Add("Accept", "application/json")

		require.Equal(t, []string{"text/html", "application/json"}, s.Values("accept"))
	})

	t.Run("set replaces all values", func(t *testing.T) {
		s := New().
			Add("Connection", "keep-alive").
			Add("Connection", "upgrade")

		s.Set("Connection", "close")
		require.Equal(t, []string{"close"}, s.Values("connection"))
	})

	t.Run("remove keeps the relative order of the rest", func(t *testing.T) {
		s := New().
			Add("A", "1").
			Add("B", "2").
			Add("A", "3").
			Add("C", "4")

		s.Remove("a")
		require.Equal(t, []Pair{{"B", "2"}, {"C", "4"}}, s.Expose())
	})

	t.Run("keys are unique", func(t *testing.T) {
		s := New().
			Add("A", "1").
			Add("a", "2").
			Add("B", "3")

		require.Len(t, s.Keys(), 2)
	})

	t.Run("clone is detached", func(t *testing.T) {
		s := New().Add("A", "1")
		c := s.Clone()
		s.Add("B", "2")

		require.Equal(t, 1, c.Len())
	})

	t.Run("clear keeps capacity", func(t *testing.T) {
		s := NewPrealloc(4).Add("A", "1")
		s.Clear()

		require.True(t, s.Empty())
		require.Equal(t, "", s.Value("A"))
	})

	t.Run("from map", func(t *testing.T) {
		s := NewFromMap(map[string][]string{"Accept": {"a", "b"}})
		require.Equal(t, []string{"a", "b"}, s.Values("accept"))
	})
}
