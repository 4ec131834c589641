package httpx

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratekl/api/pkg/logger"
)

func newTestRedisLimiter(t *testing.T) (*redisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rl := newRedisRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger.Nop())
	t.Cleanup(rl.Close)
	return rl, mr
}

func TestRedisRateLimiterCountsWithinWindow(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)

	for i := 1; i <= 3; i++ {
		d := rl.Allow("user:alice@acme.com", 3, time.Minute)
		require.True(t, d.allowed, "request %d should pass", i)
		assert.Equal(t, i, d.count)
	}
	d := rl.Allow("user:alice@acme.com", 3, time.Minute)
	assert.False(t, d.allowed)
	assert.WithinDuration(t, time.Now().Add(time.Minute), d.windowEnd, 2*time.Second)

	assert.True(t, mr.Exists(redisRateLimitPrefix+"user:alice@acme.com"))
	assert.True(t, rl.Allow("user:bob@acme.com", 3, time.Minute).allowed, "keys are independent")
}

func TestRedisRateLimiterResetsAfterWindow(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)

	require.True(t, rl.Allow("ip:10.0.0.1", 1, time.Minute).allowed)
	require.False(t, rl.Allow("ip:10.0.0.1", 1, time.Minute).allowed)

	mr.FastForward(61 * time.Second)
	d := rl.Allow("ip:10.0.0.1", 1, time.Minute)
	assert.True(t, d.allowed)
	assert.Equal(t, 1, d.count)
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	mr.Close()

	d := rl.Allow("ip:10.0.0.1", 1, time.Minute)
	assert.True(t, d.allowed)
}

func TestMemoryRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()

	assert.True(t, rl.Allow("k", 2, time.Minute).allowed)
	assert.True(t, rl.Allow("k", 2, time.Minute).allowed)
	assert.False(t, rl.Allow("k", 2, time.Minute).allowed)
	assert.True(t, rl.Allow("k", 0, time.Minute).allowed, "non-positive limit disables limiting")
}
