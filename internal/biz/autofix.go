package biz

import (
	"context"
	"time"

	"ShipRelay/internal/data"
	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// AutoFixStrategy attempts local remediation for failures that have a known
// cure, before they are surfaced. It owns two cases:
//
//   - AuthExpired: invoke the credential refresher once, then let the caller
//     retry the original call exactly once more. The attempt is bounded per
//     call chain: a refresh that "succeeds" but leaves the call failing with
//     AuthExpired again is not refreshed a second time.
//   - RateLimited: wait out the server-provided Retry-After (default from
//     config), then let the normal retry pipeline proceed.
//
// Everything else is left to the retry policy alone.
type AutoFixStrategy struct {
	refresher     CredentialRefresher
	rateLimitWait time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	logger        *log.Helper
}

// NewAutoFixStrategy creates an auto-fix strategy. rateLimitWait is the
// fallback cooldown when a RateLimited failure carries no Retry-After.
func NewAutoFixStrategy(refresher CredentialRefresher, rateLimitWait time.Duration, logger log.Logger) *AutoFixStrategy {
	if rateLimitWait <= 0 {
		rateLimitWait = 60 * time.Second
	}
	return &AutoFixStrategy{
		refresher:     refresher,
		rateLimitWait: rateLimitWait,
		sleep:         sleepContext,
		logger:        log.NewHelper(logger),
	}
}

// fixState tracks the per-call-chain guard: at most one credential refresh
// per resilient client call, however many retry attempts it spans.
type fixState struct {
	refreshAttempted bool
	refreshSucceeded bool
}

// TryFix applies the remediation for a classified failure. It returns
// (retry, fixed): retry means the caller should attempt the original call
// again; fixed means the remediation itself worked and a subsequent success
// should be flagged autoFixed.
func (s *AutoFixStrategy) TryFix(ctx context.Context, integration *data.Integration, apiErr *model.APIError, state *fixState) (retry bool, fixed bool) {
	switch apiErr.Kind {
	case model.KindAuthExpired:
		if state.refreshAttempted {
			// Single-attempt guard: never loop refresh -> still expired -> refresh.
			return false, false
		}
		state.refreshAttempted = true

		if s.refresher == nil {
			s.logger.Warnw("auth expired but no credential refresher configured",
				"integration_id", integration.ID)
			return false, false
		}

		if err := s.refresher.Refresh(ctx, integration); err != nil {
			s.logger.Errorw("credential refresh failed",
				"integration_id", integration.ID,
				"error", err)
			return false, false
		}

		s.logger.Infow("credentials refreshed, retrying original call once",
			"integration_id", integration.ID)
		state.refreshSucceeded = true
		return true, true

	case model.KindRateLimited:
		wait := apiErr.RetryAfter
		if wait <= 0 {
			wait = s.rateLimitWait
		}
		s.logger.Warnw("rate limited by integration, waiting",
			"integration_id", integration.ID,
			"wait", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return false, false
		}
		// The retry pipeline proceeds normally after the cooldown.
		return true, false

	default:
		return false, false
	}
}
