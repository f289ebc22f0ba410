package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()
	store.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		res, err := store.Allow(ctx, "verify:10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clock = clock.Add(10 * time.Second)
	}

	res, err := store.Allow(ctx, "verify:10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30, res.RetryAfter)

	t.Run("other keys keep their own window", func(t *testing.T) {
		res, err := store.Allow(ctx, "verify:10.0.0.2", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("oldest hit slides out", func(t *testing.T) {
		clock = clock.Add(31 * time.Second)
		res, err := store.Allow(ctx, "verify:10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("reset", func(t *testing.T) {
		store.Reset("verify:10.0.0.1")
		res, err := store.Allow(ctx, "verify:10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)
	})
}
