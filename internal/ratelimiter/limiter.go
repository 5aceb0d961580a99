package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// DeliveryLimiter is a token bucket shared by every delivery attempt.
// It keeps a burst of queued jobs from hammering the mail relay.
type DeliveryLimiter struct {
	limiter *rate.Limiter
}

// New creates a DeliveryLimiter allowing ratePerSec deliveries per second.
// A non-positive rate disables limiting.
func New(ratePerSec int) *DeliveryLimiter {
	if ratePerSec <= 0 {
		return &DeliveryLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &DeliveryLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)}
}

// Wait blocks until a delivery token is available.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *DeliveryLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
