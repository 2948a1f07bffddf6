package recommender

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds how often a stage repeats a failed outbound call.
// Retries is the number of extra attempts; zero disables retrying.
type RetryPolicy struct {
	Retries uint
	Delay   time.Duration
}

// NoRetry runs every call exactly once.
var NoRetry = RetryPolicy{}

// Do runs fn until it succeeds, returns an error wrapped with
// retry.Unrecoverable, or the attempts are used up. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(p.Retries+1),
		retry.Delay(p.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
