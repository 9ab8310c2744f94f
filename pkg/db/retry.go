package db

import (
	"context"
	"errors"
	"time"
)

const DefaultOCCMaxAttempts = 8

// RetryOnConflict runs fn until it succeeds, fails with something other than
// ErrVersionConflict, or the attempt budget is spent. A spent budget is reported
// as ErrUnavailable so callers back off instead of surfacing a validation error.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultOCCMaxAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Unavailable(ctxErr)
		}
		if i+1 < attempts {
			backoff(ctx, i)
		}
	}
	return Unavailable(err)
}

func backoff(ctx context.Context, attempt int) {
	delay := time.Duration(attempt+1) * 2 * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// CheckAffected converts a zero-row optimistic update into ErrVersionConflict.
func CheckAffected(rows int64) error {
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}
