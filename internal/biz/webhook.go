package biz

import (
	"context"

	"ShipRelay/internal/model"
)

// WebhookService defines the interface for webhook notifications to external
// subscribers (dashboard, alerting).
type WebhookService interface {
	// NotifyCircuitOpened sends notification when a circuit breaker trips
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error

	// NotifyCircuitRecovered sends notification when a circuit breaker recovers
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error

	// NotifyIntegrationDisabled sends notification when consecutive errors
	// cross the hard ceiling and autonomous sync is switched off
	NotifyIntegrationDisabled(ctx context.Context, event *model.IntegrationDisabledEvent) error

	// NotifyTagsApplied sends notification when the action executor changes
	// an order's tags
	NotifyTagsApplied(ctx context.Context, event *model.TagsAppliedEvent) error
}

// Notifier dispatches rule-triggered notifications. Delivery transports are
// external; the action executor only hands over channel and template.
type Notifier interface {
	Send(ctx context.Context, channel, template string, order *model.OrderSnapshot) error
}
