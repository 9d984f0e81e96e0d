package main

import (
	"context"
	"time"

	"ShipRelay/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartSchedulers starts the background cron jobs:
//
//   - credential refresh: hourly, refreshes integration credentials that
//     expire within the next 24 hours
//   - health sweep: every 5 minutes, logs integrations that are
//     disconnected or have sync disabled
func StartSchedulers(refreshTask *biz.CredentialRefreshTask, health *biz.HealthUsecase, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	// Hourly, on the hour: 0 0 * * * * (sec min hour dom month dow)
	_, err := c.AddFunc("0 0 * * * *", func() {
		helper.Info("starting credential refresh sweep")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := refreshTask.RefreshExpiring(ctx); err != nil {
			helper.Errorw("credential refresh sweep failed", "error", err)
		}
	})
	if err != nil {
		helper.Errorw("failed to register credential refresh cron job", "error", err)
		return nil
	}

	// Every 5 minutes.
	_, err = c.AddFunc("0 */5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		snapshots, err := health.HealthAll(ctx)
		if err != nil {
			helper.Errorw("health sweep failed", "error", err)
			return
		}

		for _, snap := range snapshots {
			if snap.Connected && snap.SyncEnabled {
				continue
			}
			helper.Warnw("integration unhealthy",
				"integration_id", snap.IntegrationID,
				"integration", snap.Name,
				"connected", snap.Connected,
				"sync_enabled", snap.SyncEnabled,
				"consecutive_errors", snap.ConsecutiveErrors,
				"last_error", snap.LastError,
			)
		}
	})
	if err != nil {
		helper.Errorw("failed to register health sweep cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Info("schedulers started: credential refresh hourly, health sweep every 5 minutes")

	return c
}
