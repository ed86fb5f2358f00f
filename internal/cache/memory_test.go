package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "acme", payload{Name: "Acme"}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "acme", &got))
	assert.Equal(t, "Acme", got.Name)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "acme", &got), ErrMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheDeleteAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", payload{Name: "a"}, time.Second))
	require.NoError(t, c.Set(ctx, "b", payload{Name: "b"}, 0))
	require.NoError(t, c.Set(ctx, "c", payload{Name: "c"}, time.Hour))

	require.NoError(t, c.Delete(ctx, "c"))
	var got payload
	assert.ErrorIs(t, c.Get(ctx, "c", &got), ErrMiss)

	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
	require.NoError(t, c.Get(ctx, "b", &got))
	assert.Equal(t, "b", got.Name)
}
