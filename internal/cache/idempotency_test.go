package cache_test

import (
	"context"
	"testing"
	"time"

	"meatshop/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStore_Lifecycle(t *testing.T) {
	store := cache.NewMemoryIdempotencyStore(time.Hour)
	ctx := context.Background()

	existing, err := store.Begin(ctx, "u1:cart-42")
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = store.Begin(ctx, "u1:cart-42")
	assert.ErrorIs(t, err, cache.ErrInFlight)

	require.NoError(t, store.Complete(ctx, "u1:cart-42", "order-1"))
	existing, err = store.Begin(ctx, "u1:cart-42")
	require.NoError(t, err)
	assert.Equal(t, "order-1", existing)
}

func TestMemoryIdempotencyStore_AbortFreesKey(t *testing.T) {
	store := cache.NewMemoryIdempotencyStore(time.Hour)
	ctx := context.Background()

	_, err := store.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.Abort(ctx, "k"))

	existing, err := store.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := cache.NewMemoryIdempotencyStore(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Complete(ctx, "k", "order-1"))
	time.Sleep(20 * time.Millisecond)

	existing, err := store.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, existing)
}
