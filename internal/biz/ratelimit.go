package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// rateLimitWindow is the sliding admission window.
const rateLimitWindow = 60 * time.Second

// SlidingWindowLimiter admits calls for one integration. It keeps the
// timestamps of recent admissions; a call is admitted once fewer than the
// configured requests-per-minute remain inside the window, blocking until
// the oldest admission ages out otherwise.
//
// Admission is serialized: one goroutine holds the admission lock at a time,
// including across its wait, so concurrent callers cannot over-admit and are
// served in lock-acquisition order.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	timestamps []time.Time

	// limit is atomic so the registry can resize a limiter without touching
	// the admission lock, which a waiting caller may hold for most of a
	// window.
	limit atomic.Int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindowLimiter creates a limiter admitting at most limit calls
// per 60-second rolling window. limit <= 0 means unlimited.
func NewSlidingWindowLimiter(limit int) *SlidingWindowLimiter {
	l := &SlidingWindowLimiter{
		now:   time.Now,
		sleep: sleepContext,
	}
	l.limit.Store(int64(limit))
	return l
}

// Limit returns the current requests-per-minute ceiling.
func (l *SlidingWindowLimiter) Limit() int {
	return int(l.limit.Load())
}

// Admit blocks until the call may proceed under the window, then records the
// admission. It returns early with the context error if ctx expires while
// waiting.
func (l *SlidingWindowLimiter) Admit(ctx context.Context) error {
	if l.Limit() <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		// Re-read every pass: the ceiling may have been resized while this
		// caller was waiting.
		limit := l.Limit()
		if limit <= 0 {
			return nil
		}

		now := l.now()
		l.prune(now)

		if len(l.timestamps) < limit {
			l.timestamps = append(l.timestamps, now)
			return nil
		}

		// Wait for the oldest admission to exit the window. The lock is held
		// across the wait on purpose: it keeps admission FIFO and prevents
		// over-admission by concurrent callers.
		wait := l.timestamps[0].Add(rateLimitWindow).Sub(now)
		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops timestamps older than the window.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateLimitWindow)
	idx := 0
	for idx < len(l.timestamps) && !l.timestamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[idx:]...)
	}
}

// InWindow returns how many admissions currently sit inside the window.
func (l *SlidingWindowLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.timestamps)
}

// LimiterRegistry holds the per-integration limiters, injected like the
// breaker registry rather than reached through a global.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[int64]*SlidingWindowLimiter
	logger   *log.Helper
}

// NewLimiterRegistry creates an empty limiter registry.
func NewLimiterRegistry(logger log.Logger) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[int64]*SlidingWindowLimiter),
		logger:   log.NewHelper(logger),
	}
}

// Get returns the limiter for an integration, creating or resizing it to the
// given requests-per-minute on the way.
func (r *LimiterRegistry) Get(integrationID int64, requestsPerMinute int) *SlidingWindowLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[integrationID]
	if !ok {
		l = NewSlidingWindowLimiter(requestsPerMinute)
		r.limiters[integrationID] = l
		return l
	}

	// Rate-limit config is editable on the integration record; pick up
	// changes. The ceiling is atomic, so resizing never waits on a caller
	// blocked inside Admit.
	if old := l.Limit(); old != requestsPerMinute {
		l.limit.Store(int64(requestsPerMinute))
		r.logger.Infow("rate limit updated",
			"integration_id", integrationID,
			"old", old,
			"new", requestsPerMinute)
	}

	return l
}
