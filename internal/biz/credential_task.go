package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// credentialRefreshWindow is how far ahead of expiry credentials are
// refreshed proactively.
const credentialRefreshWindow = 24 * time.Hour

// CredentialRefreshTask proactively refreshes integration credentials that
// are close to expiry, so the auto-fix path stays a fallback rather than the
// normal refresh mechanism. Driven by the cron scheduler.
type CredentialRefreshTask struct {
	repo      IntegrationRepo
	refresher CredentialRefresher
	logger    *log.Helper
}

// NewCredentialRefreshTask creates the scheduled refresh task.
func NewCredentialRefreshTask(repo IntegrationRepo, refresher CredentialRefresher, logger log.Logger) *CredentialRefreshTask {
	return &CredentialRefreshTask{
		repo:      repo,
		refresher: refresher,
		logger:    log.NewHelper(logger),
	}
}

// RefreshExpiring refreshes every credential expiring within the refresh
// window. One integration failing never stops the sweep.
func (t *CredentialRefreshTask) RefreshExpiring(ctx context.Context) error {
	integrations, err := t.repo.ListExpiringCredentials(ctx, credentialRefreshWindow)
	if err != nil {
		return err
	}

	if len(integrations) == 0 {
		t.logger.Debug("no credentials close to expiry")
		return nil
	}

	var failed int
	for _, integration := range integrations {
		if err := t.refresher.Refresh(ctx, integration); err != nil {
			failed++
			t.logger.Warnw("scheduled credential refresh failed",
				"integration_id", integration.ID,
				"integration", integration.Name,
				"error", err,
			)
			continue
		}
		t.logger.Infow("credential refreshed ahead of expiry",
			"integration_id", integration.ID,
			"integration", integration.Name,
		)
	}

	t.logger.Infow("credential refresh sweep completed",
		"total", len(integrations),
		"failed", failed,
	)
	return nil
}
