package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_TTL(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(4)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Second))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Second)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, b.Len())
}

func TestMemoryBackend_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(2)

	require.NoError(t, b.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), time.Minute))

	// touch a so b becomes the eviction candidate
	_, err := b.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, b.Set(ctx, "c", []byte("3"), time.Minute))

	assert.Equal(t, 2, b.Len())
	_, err = b.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = b.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryBackend_Delete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend(0)

	require.NoError(t, b.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, b.Delete(ctx, "a", "missing"))

	_, err := b.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
