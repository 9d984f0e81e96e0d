package data

import (
	"context"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// NoopWebhookService implements biz.WebhookService by logging events only.
// Outbound webhook delivery (HTTP POST to subscriber endpoints) is an outer
// surface; the dispatch points are already in place.
type NoopWebhookService struct {
	logger *log.Helper
}

// NewNoopWebhookService creates a new noop webhook service
func NewNoopWebhookService(logger log.Logger) *NoopWebhookService {
	return &NoopWebhookService{
		logger: log.NewHelper(logger),
	}
}

// NotifyCircuitOpened logs a circuit opened event
func (s *NoopWebhookService) NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error {
	s.logger.Infow("webhook: circuit opened",
		"integration_id", event.IntegrationID,
		"integration", event.IntegrationName,
		"category", event.Category,
		"failure_count", event.FailureCount,
		"opened_at", event.OpenedAt)
	return nil
}

// NotifyCircuitRecovered logs a circuit recovered event
func (s *NoopWebhookService) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	s.logger.Infow("webhook: circuit recovered",
		"integration_id", event.IntegrationID,
		"integration", event.IntegrationName,
		"category", event.Category,
		"open_for", event.OpenFor)
	return nil
}

// NotifyIntegrationDisabled logs an integration disabled event
func (s *NoopWebhookService) NotifyIntegrationDisabled(ctx context.Context, event *model.IntegrationDisabledEvent) error {
	s.logger.Warnw("webhook: integration disabled",
		"integration_id", event.IntegrationID,
		"integration", event.IntegrationName,
		"consecutive_errors", event.ConsecutiveErrors,
		"last_error", event.LastError)
	return nil
}

// NotifyTagsApplied logs a tags applied event
func (s *NoopWebhookService) NotifyTagsApplied(ctx context.Context, event *model.TagsAppliedEvent) error {
	s.logger.Infow("webhook: tags applied",
		"order_id", event.OrderID,
		"rule_id", event.RuleID,
		"added", event.Added,
		"removed", event.Removed)
	return nil
}
