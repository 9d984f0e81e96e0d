package biz

import (
	"context"
	"math/rand"
	"time"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// RetryPolicy runs an operation with bounded exponential backoff. Whether a
// failed attempt is retried at all is decided by its classification, not by
// the policy itself.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	// sleep and jitter are injectable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
	logger *log.Helper
}

// NewRetryPolicy creates a retry policy with the given bounds. maxRetries is
// the number of attempts after the first call; baseDelay seeds the
// exponential backoff.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration, logger log.Logger) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepContext,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(time.Second)))
		},
		logger: log.NewHelper(logger),
	}
}

// Run invokes fn until it succeeds, fails with a non-retryable
// classification, or exhausts maxRetries. The last classified error is
// propagated. Attempt i (0-indexed) waits baseDelay*2^i plus up to 1s of
// jitter before retrying.
func (p *RetryPolicy) Run(ctx context.Context, fn func(ctx context.Context, attempt int) *model.APIError) *model.APIError {
	var lastErr *model.APIError

	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if !lastErr.Retryable() {
			return lastErr
		}
		if attempt >= p.maxRetries {
			p.logger.Warnw("retries exhausted",
				"attempts", attempt+1,
				"kind", lastErr.Kind,
				"error", lastErr.Message)
			return lastErr
		}

		delay := p.Backoff(attempt)
		p.logger.Debugw("retrying after backoff",
			"attempt", attempt,
			"delay", delay,
			"kind", lastErr.Kind)

		if err := p.sleep(ctx, delay); err != nil {
			// Context expired while waiting; surface the last real failure.
			return lastErr
		}
	}
}

// Backoff returns the delay before retrying attempt i (0-indexed):
// baseDelay * 2^i plus uniform jitter in [0, 1s).
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	return p.baseDelay*(1<<attempt) + p.jitter()
}

// MaxRetries returns the configured retry bound.
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// sleepContext sleeps for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
