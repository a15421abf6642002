package cache

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", []byte("value"))
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestLRUEviction_MaxItems(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{MaxItems: 2})

	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))
	c.Set("c", []byte("z"))

	_, ok := c.Get("a")
	assert.False(t, ok, "first-inserted key should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUEviction_GetPromotes(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{MaxItems: 2})

	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", []byte("z"))

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestByteBound(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{MaxBytes: 100})

	for i := 0; i < 20; i++ {
		c.Set(fmt.Sprintf("key-%d", i), make([]byte, 30))
		assert.LessOrEqual(t, c.SizeBytes(), int64(100))
	}
	assert.LessOrEqual(t, c.Len(), 3)
}

func TestByteBound_OversizedEntry(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{MaxBytes: 10})

	// An entry bigger than the whole budget cannot stay resident.
	c.Set("huge", make([]byte, 100))
	assert.Equal(t, int64(0), c.SizeBytes())
	assert.Equal(t, 0, c.Len())
}

func TestUpdateExistingKey(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	c.Set("a", make([]byte, 10))
	c.Set("a", make([]byte, 30))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(30), c.SizeBytes())
}

func TestDelete(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	c.Set("a", []byte("x"))
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, int64(0), c.SizeBytes())
}

func TestSizerFallback(t *testing.T) {
	type opaque struct{ a, b int }
	c := New[string, opaque](Options[opaque]{})

	// Default sizer cannot measure a struct; the fallback estimate applies
	// instead of failing the Set.
	c.Set("a", opaque{1, 2})
	assert.Equal(t, int64(fallbackEntrySize), c.SizeBytes())
}

func TestCustomSizer(t *testing.T) {
	c := New[string, int](Options[int]{
		Sizer: func(int) (int64, error) { return 8, nil },
	})

	c.Set("a", 42)
	assert.Equal(t, int64(8), c.SizeBytes())
}

func TestTTLExpiry(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{TTL: 20 * time.Millisecond})

	c.Set("a", []byte("x"))
	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = c.Get("a")
	assert.False(t, ok, "expired entry should be a miss")
	assert.Equal(t, 0, c.Len())
}

func TestPrune(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{TTL: 20 * time.Millisecond})

	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))
	time.Sleep(40 * time.Millisecond)
	c.Set("c", []byte("z"))

	pruned := c.Prune()
	assert.Equal(t, 2, pruned)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidatePrefix(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	c.Set("chunk:s1:0", []byte("a"))
	c.Set("chunk:s1:1", []byte("b"))
	c.Set("chunk:s2:0", []byte("c"))
	c.Set("metadata:s1", []byte("d"))

	count := c.InvalidatePrefix("chunk:s1:")
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("chunk:s2:0")
	assert.True(t, ok)
}

func TestInvalidateRegexp(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	c.Set("metadata:s1", []byte("a"))
	c.Set("chunk:s1:0", []byte("b"))
	c.Set("artifact:s1:summary", []byte("c"))
	c.Set("metadata:s2", []byte("d"))

	count := c.InvalidateRegexp(regexp.MustCompile(`:s1(:|$)`))
	assert.Equal(t, 3, count)

	_, ok := c.Get("metadata:s2")
	assert.True(t, ok)
}

func TestBatchOperations(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	c.SetMany(map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
		"c": []byte("3"),
	})

	got := c.GetMany("a", "b", "missing")
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("1"), got["a"])

	deleted := c.DeleteMany("a", "b", "missing")
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 1, c.Len())
}

func TestClear(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{})

	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.SizeBytes())
}

func TestStats(t *testing.T) {
	c := New[string, []byte](Options[[]byte]{MaxItems: 2})

	c.Set("a", []byte("x"))
	c.Set("b", []byte("y"))
	c.Set("c", []byte("z")) // evicts "a"

	c.Get("b")       // hit
	c.Get("a")       // miss
	c.Get("missing") // miss

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Items)
	assert.False(t, stats.NewestEntry.IsZero())
	assert.False(t, stats.OldestEntry.IsZero())
	assert.True(t, !stats.NewestEntry.Before(stats.OldestEntry))
}
