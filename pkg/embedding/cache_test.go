package embedding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolgateway/registry/pkg/telemetry"
)

func TestCache_GetMissThenPutThenHit(t *testing.T) {
	t.Parallel()
	c := NewCache(2, telemetry.NoOp{})

	_, ok := c.Get("add two numbers")
	require.False(t, ok)

	c.Put("add two numbers", []float32{1, 2, 3})
	v, ok := c.Get("add two numbers")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, v)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	c := NewCache(2, telemetry.NoOp{})

	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	// Touch "a" so "b" becomes the least recently used.
	_, _ = c.Get("a")
	c.Put("c", []float32{3})

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	require.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestCache_PutOverwritesExisting(t *testing.T) {
	t.Parallel()
	c := NewCache(4, telemetry.NoOp{})

	c.Put("a", []float32{1})
	c.Put("a", []float32{9})

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, []float32{9}, v)
	require.Equal(t, 1, c.Len())
}
