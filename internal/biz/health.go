package biz

import (
	"context"

	"ShipRelay/internal/data"
	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// HealthUsecase assembles per-integration health snapshots for the
// monitoring surface: cumulative success and auto-fix rates from the
// integration row plus the live breaker states from the registry.
type HealthUsecase struct {
	repo     IntegrationRepo
	breakers *BreakerRegistry
	logger   *log.Helper
}

// NewHealthUsecase creates a health usecase.
func NewHealthUsecase(repo IntegrationRepo, breakers *BreakerRegistry, logger log.Logger) *HealthUsecase {
	return &HealthUsecase{
		repo:     repo,
		breakers: breakers,
		logger:   log.NewHelper(logger),
	}
}

// Health returns the health snapshot for one integration.
func (uc *HealthUsecase) Health(ctx context.Context, integrationID int64) (*model.IntegrationHealth, error) {
	integration, err := uc.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	return uc.snapshot(integration), nil
}

// HealthAll returns health snapshots for every integration, ordered by name.
func (uc *HealthUsecase) HealthAll(ctx context.Context) ([]*model.IntegrationHealth, error) {
	integrations, err := uc.repo.ListIntegrations(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]*model.IntegrationHealth, 0, len(integrations))
	for _, integration := range integrations {
		snaps = append(snaps, uc.snapshot(integration))
	}
	return snaps, nil
}

func (uc *HealthUsecase) snapshot(integration *data.Integration) *model.IntegrationHealth {
	health := &model.IntegrationHealth{
		IntegrationID:     integration.ID,
		Name:              integration.Name,
		Connected:         integration.Connected,
		SyncEnabled:       integration.SyncEnabled,
		ConsecutiveErrors: integration.ConsecutiveErrors,
		AvgResponseMs:     integration.AvgResponseMs,
		Breakers:          uc.breakers.Snapshots(integration.ID),
	}
	if integration.LastError != nil {
		health.LastError = *integration.LastError
	}
	if integration.TotalRequests > 0 {
		health.SuccessRate = float64(integration.SuccessfulRequests) / float64(integration.TotalRequests)
		health.AutoFixRate = float64(integration.AutoFixedRequests) / float64(integration.TotalRequests)
	}
	return health
}
