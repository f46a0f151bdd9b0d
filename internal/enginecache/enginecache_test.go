package enginecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligencedev/ragserver/internal/persistence/databases"
	"github.com/intelligencedev/ragserver/internal/registry"
)

func TestCache_GetConstructsOnceAndReusesWhileWarm(t *testing.T) {
	var constructs int
	c := New(time.Minute, 10, func(_ context.Context, kb registry.KB) (Entry, error) {
		constructs++
		return Entry{KB: kb, Manager: databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}}, nil
	})

	kb := registry.KB{Name: "acme"}
	e1, err := c.Get(context.Background(), kb)
	require.NoError(t, err)
	e2, err := c.Get(context.Background(), kb)
	require.NoError(t, err)
	require.Same(t, e1, e2)
	require.Equal(t, 1, constructs)
}

func TestCache_ExpiredEntryIsReconstructed(t *testing.T) {
	var constructs int
	c := New(time.Nanosecond, 10, func(_ context.Context, kb registry.KB) (Entry, error) {
		constructs++
		return Entry{KB: kb, Manager: databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}}, nil
	})

	kb := registry.KB{Name: "acme"}
	_, err := c.Get(context.Background(), kb)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = c.Get(context.Background(), kb)
	require.NoError(t, err)
	require.Equal(t, 2, constructs)
}

func TestCache_EvictsOldestOverCapacity(t *testing.T) {
	c := New(time.Minute, 2, func(_ context.Context, kb registry.KB) (Entry, error) {
		return Entry{KB: kb, Manager: databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}}, nil
	})

	for _, name := range []string{"a", "b", "c"} {
		_, err := c.Get(context.Background(), registry.KB{Name: name})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	require.Len(t, c.entries, 2)
	_, stillThere := c.entries["a"]
	require.False(t, stillThere, "oldest entry should have been evicted")
}

func TestCache_InvalidateRemovesEntry(t *testing.T) {
	c := New(time.Minute, 10, func(_ context.Context, kb registry.KB) (Entry, error) {
		return Entry{KB: kb, Manager: databases.Manager{Search: databases.NewMemorySearch(), Vector: databases.NewMemoryVector()}}, nil
	})
	_, err := c.Get(context.Background(), registry.KB{Name: "acme"})
	require.NoError(t, err)
	c.Invalidate("acme")
	_, ok := c.entries["acme"]
	require.False(t, ok)
}
