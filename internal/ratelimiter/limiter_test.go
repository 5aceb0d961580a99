package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/scribe-dispatch/internal/ratelimiter"
)

func TestDeliveryLimiter_BurstThenThrottle(t *testing.T) {
	l := ratelimiter.New(5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "burst should not wait")

	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "sixth token should be throttled")
}

func TestDeliveryLimiter_CancelledContext(t *testing.T) {
	l := ratelimiter.New(1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestDeliveryLimiter_Unlimited(t *testing.T) {
	l := ratelimiter.New(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}
