package ratelimiter

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetBucketConfig(t *testing.T) {
	t.Parallel()

	var nilLimiter *RedisLuaLimiter
	assert.NotPanics(t, func() { nilLimiter.SetBucketConfig("ai", BucketConfig{Capacity: 1, RefillRate: 1}) })

	l, _ := newTestLimiter(t, nil)
	ctx := context.Background()
	ok, _, err := l.Allow(ctx, "ai:org-9", 1)
	require.NoError(t, err)
	assert.True(t, ok, "unconfigured class allows")

	l.SetBucketConfig("ai", BucketConfig{Capacity: 1, RefillRate: 0.001})
	ok, _, err = l.Allow(ctx, "ai:org-9", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, retry, err := l.Allow(ctx, "ai:org-9", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Positive(t, retry)
}

func TestClass(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ai", class("ai:org-1"))
	assert.Equal(t, "ai", class("ai:org:with:colons"))
	assert.Equal(t, "plain", class("plain"))
}

func TestToFloat64(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5.0, toFloat64(int64(5)))
	assert.Equal(t, 1.5, toFloat64(1.5))
	assert.Equal(t, 0.25, toFloat64("0.25"))
	assert.True(t, math.IsNaN(toFloat64("nan-ish")))
	assert.True(t, math.IsNaN(toFloat64(3)))
}
