package delta

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("starts with a full bucket", func(t *testing.T) {
		rl := NewRateLimiter(10, 3)

		assert.Equal(t, 10.0, rl.Rate())
		assert.Equal(t, 3, rl.Burst())

		for i := 0; i < 3; i++ {
			assert.True(t, rl.TryAcquire(), "token %d", i)
		}
		assert.False(t, rl.TryAcquire())
	})
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	t.Run("refills over time", func(t *testing.T) {
		rl := NewRateLimiter(100, 1)

		assert.True(t, rl.TryAcquire())
		assert.False(t, rl.TryAcquire())

		time.Sleep(20 * time.Millisecond)
		assert.True(t, rl.TryAcquire())
	})

	t.Run("caps refill at burst", func(t *testing.T) {
		rl := NewRateLimiter(1000, 2)

		time.Sleep(20 * time.Millisecond)

		assert.True(t, rl.TryAcquire())
		assert.True(t, rl.TryAcquire())
		assert.False(t, rl.TryAcquire())
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("returns immediately when a token is available", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)

		start := time.Now()
		err := rl.Wait(context.Background())

		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("blocks until a token is refilled", func(t *testing.T) {
		rl := NewRateLimiter(50, 1)
		assert.True(t, rl.TryAcquire())

		start := time.Now()
		err := rl.Wait(context.Background())

		assert.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		assert.True(t, rl.TryAcquire())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		assert.Error(t, err)
	})

	t.Run("fails fast with zero rate and empty bucket", func(t *testing.T) {
		rl := NewRateLimiter(0, 1)
		assert.True(t, rl.TryAcquire())

		err := rl.Wait(context.Background())
		assert.Error(t, err)
	})

	t.Run("returns error for already cancelled context", func(t *testing.T) {
		rl := NewRateLimiter(10, 1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := rl.Wait(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
