package loyaltysdk

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBackOff doubles the delay from one second up to thirty, with no
// overall deadline. Attempt counts are bounded by Retry.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Retry runs op until it succeeds, fails with a non-transient error, or has
// been retried maxRetries times. A nil b uses DefaultBackOff.
func Retry(ctx context.Context, b backoff.BackOff, maxRetries uint64, op func() error) error {
	if b == nil {
		b = DefaultBackOff()
	}
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx))
}
