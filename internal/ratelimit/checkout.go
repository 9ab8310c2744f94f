package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/config"
)

const keyCheckoutEvent = "boxoffice:checkout:event:%s"

// CheckoutLimiter throttles sales and refunds per event. A nil limiter allows everything.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewCheckoutLimiter(cfg config.Config, bucket *TokenBucket) *CheckoutLimiter {
	if bucket == nil || cfg.Checkout.RatePerSecond <= 0 || cfg.Checkout.Burst <= 0 {
		return nil
	}
	return &CheckoutLimiter{
		bucket: bucket,
		rate:   cfg.Checkout.RatePerSecond,
		burst:  cfg.Checkout.Burst,
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil
}

func (l *CheckoutLimiter) AllowEvent(ctx context.Context, eventID snowflake.ID) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutEvent, eventID.String()), l.rate, l.burst)
}
