package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore(), 3, time.Minute)
	ctx := context.Background()

	// Первые три запроса проходят
	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))

	// Четвертый отклоняется
	assert.False(t, limiter.Allow(ctx, "10.0.0.1"))

	// Лимиты независимы по ключам
	assert.True(t, limiter.Allow(ctx, "10.0.0.2"))
}

func TestRateLimiterReset(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryCounterStore(), 1, time.Minute)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
	assert.False(t, limiter.Allow(ctx, "10.0.0.1"))

	limiter.Reset(ctx, "10.0.0.1")
	assert.True(t, limiter.Allow(ctx, "10.0.0.1"))
}

func TestMemoryCounterStoreWindow(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()

	// Запросы за пределами окна не учитываются
	count, err := store.Incr(ctx, "key", time.Nanosecond)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	time.Sleep(time.Millisecond)

	count, err = store.Incr(ctx, "key", time.Nanosecond)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
