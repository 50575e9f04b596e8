package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the attempts of one logical call.
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		Attempts:        attempts,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// Retry calls fn until it succeeds, returns an error Retryable rejects, or
// the policy runs out of attempts. attempt counts from 1.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx, attempt)
		if err != nil && !Retryable(ctx, err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "retrying external call",
				"op", op,
				"attempt", attempt,
				"max_attempts", attempts,
				"next_delay_ms", next.Milliseconds(),
				"error", err)
		}),
	)
}
