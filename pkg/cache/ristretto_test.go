package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()
	c, err := NewRistrettoCache(&RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c.(*RistrettoCache)
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)

	ok := c.Set("markets:Soccer", []string{"m1", "m2"}, time.Minute)
	require.True(t, ok)
	c.Wait()

	got, found := c.Get("markets:Soccer")
	require.True(t, found)
	assert.Equal(t, []string{"m1", "m2"}, got)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)

	_, found := c.Get("nope")
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)

	c.Set("k", 1, time.Minute)
	c.Wait()
	c.Delete("k")
	c.Wait()

	_, found := c.Get("k")
	assert.False(t, found)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)

	c.Set("short", "v", 20*time.Millisecond)
	c.Wait()

	time.Sleep(60 * time.Millisecond)
	_, found := c.Get("short")
	assert.False(t, found)
}
