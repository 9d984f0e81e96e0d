package biz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreaker guards one (integration, operation category) pair. State
// transitions:
//
//	CLOSED  --failureCount>=threshold--> OPEN
//	OPEN    --timeout elapsed (lazy)---> HALF_OPEN
//	HALF_OPEN --success--> CLOSED, --failure--> OPEN
//
// Every successful call-through resets failureCount regardless of state;
// every failed call-through increments it.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           model.BreakerState
	failureCount    int
	lastFailureTime time.Time
	openedAt        time.Time

	threshold int
	timeout   time.Duration
	now       func() time.Time
}

// BreakerTransition describes a state change produced by recording a call
// outcome, so the caller can publish events and audit entries.
type BreakerTransition int

const (
	TransitionNone BreakerTransition = iota
	TransitionOpened
	TransitionRecovered
)

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     model.BreakerClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While OPEN and inside the
// timeout it returns a CircuitOpen error without any transport attempt; once
// the timeout elapses the breaker moves to HALF_OPEN and admits a single
// trial (checked lazily on the call path, there is no background timer).
// HALF_OPEN itself means that trial is in flight, so any other caller is
// rejected until RecordSuccess or RecordFailure settles the state.
func (b *CircuitBreaker) Allow(integrationID int64, category string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case model.BreakerClosed:
		return nil
	case model.BreakerHalfOpen:
		return model.NewCircuitOpenError(integrationID, category, 0)
	}

	elapsed := b.now().Sub(b.lastFailureTime)
	if elapsed < b.timeout {
		return model.NewCircuitOpenError(integrationID, category, b.timeout-elapsed)
	}

	b.state = model.BreakerHalfOpen
	return nil
}

// RecordSuccess resets the failure count and closes the breaker. It returns
// TransitionRecovered when a half-open probe brought the breaker back.
func (b *CircuitBreaker) RecordSuccess() BreakerTransition {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbing := b.state == model.BreakerHalfOpen
	b.failureCount = 0
	b.state = model.BreakerClosed
	if wasProbing {
		return TransitionRecovered
	}
	return TransitionNone
}

// RecordFailure counts a failed call-through and opens the breaker when the
// threshold is reached or a half-open probe fails.
func (b *CircuitBreaker) RecordFailure() BreakerTransition {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()

	switch b.state {
	case model.BreakerHalfOpen:
		b.state = model.BreakerOpen
		return TransitionOpened
	case model.BreakerClosed:
		if b.failureCount >= b.threshold {
			b.state = model.BreakerOpen
			b.openedAt = b.lastFailureTime
			return TransitionOpened
		}
	}
	return TransitionNone
}

// OpenFor returns how long the breaker has been open.
func (b *CircuitBreaker) OpenFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return 0
	}
	return b.now().Sub(b.openedAt)
}

// Snapshot returns the externally visible breaker state.
func (b *CircuitBreaker) Snapshot(integrationID int64, category string) model.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := model.BreakerSnapshot{
		IntegrationID:   integrationID,
		Category:        category,
		State:           b.state,
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
	}
	if b.state == model.BreakerOpen {
		if remaining := b.timeout - b.now().Sub(b.lastFailureTime); remaining > 0 {
			snap.RetryIn = remaining
		}
	}
	return snap
}

// BreakerRegistry holds the per-(integration, category) breakers for the
// whole process. It is injected wherever breaker state is needed; there is
// no package-level singleton.
type BreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	threshold int
	timeout   time.Duration
	logger    *log.Helper
}

// NewBreakerRegistry creates a registry with shared threshold/timeout
// defaults from configuration.
func NewBreakerRegistry(threshold int, timeout time.Duration, logger log.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
		logger:    log.NewHelper(logger),
	}
}

func breakerKey(integrationID int64, category string) string {
	return fmt.Sprintf("%d:%s", integrationID, category)
}

// Get returns the breaker for the pair, creating it closed on first use.
func (r *BreakerRegistry) Get(integrationID int64, category string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := breakerKey(integrationID, category)
	b, ok := r.breakers[key]
	if !ok {
		b = NewCircuitBreaker(r.threshold, r.timeout)
		r.breakers[key] = b
		r.logger.Debugw("breaker created", "integration_id", integrationID, "category", category)
	}
	return b
}

// Reset force-closes the breaker for the pair, if it exists. Used by the
// admin surface after a manual fix.
func (r *BreakerRegistry) Reset(integrationID int64, category string) bool {
	r.mu.Lock()
	b, ok := r.breakers[breakerKey(integrationID, category)]
	r.mu.Unlock()
	if !ok {
		return false
	}
	b.RecordSuccess()
	return true
}

// Snapshots returns the breaker states for one integration, sorted by
// category for stable output.
func (r *BreakerRegistry) Snapshots(integrationID int64) []model.BreakerSnapshot {
	r.mu.Lock()
	prefix := fmt.Sprintf("%d:", integrationID)
	type entry struct {
		category string
		b        *CircuitBreaker
	}
	var entries []entry
	for key, b := range r.breakers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			entries = append(entries, entry{category: key[len(prefix):], b: b})
		}
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].category < entries[j].category })

	snaps := make([]model.BreakerSnapshot, 0, len(entries))
	for _, e := range entries {
		snaps = append(snaps, e.b.Snapshot(integrationID, e.category))
	}
	return snaps
}

// Execute runs fn through the breaker: rejects fast while open, records the
// outcome, and returns any transition for the caller to publish.
func (b *CircuitBreaker) Execute(ctx context.Context, integrationID int64, category string, fn func(ctx context.Context) *model.APIError) (*model.APIError, BreakerTransition) {
	if err := b.Allow(integrationID, category); err != nil {
		var apiErr *model.APIError
		if e, ok := err.(*model.APIError); ok {
			apiErr = e
		} else {
			apiErr = &model.APIError{Kind: model.KindCircuitOpen, Message: err.Error(), Cause: err}
		}
		return apiErr, TransitionNone
	}

	if err := fn(ctx); err != nil {
		return err, b.RecordFailure()
	}
	return nil, b.RecordSuccess()
}
