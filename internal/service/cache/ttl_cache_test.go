package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetBytes(ctx, "k", []byte("v"), time.Second))
	require.NoError(t, c.SetBytes(ctx, "forever", []byte("x"), 0))

	b, ok, err := c.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.GetBytes(ctx, "k")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "forever"))
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache()
	v := []byte("abc")
	_ = c.SetBytes(ctx, "k", v, 0)
	v[0] = 'z'
	b, _, _ := c.GetBytes(ctx, "k")
	assert.Equal(t, []byte("abc"), b)
}
