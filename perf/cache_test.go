package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSetAndHitRatio(t *testing.T) {
	c := NewCache(10, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	// One miss, one hit so far: ratio should be 0.5, not the original's
	// hard-coded-zero stub.
	assert.InDelta(t, 0.5, c.HitRatio(), 0.001)
}

func TestCacheExpiresEntriesByTTL(t *testing.T) {
	c := NewCache(10, 10*time.Millisecond)
	c.Set("k", []byte("v"))

	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should be expired and evicted")
}

func TestCachePurgeClearsAllEntries(t *testing.T) {
	c := NewCache(10, time.Minute)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	require.Equal(t, 2, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
