package biz

import (
	"context"

	"ShipRelay/internal/data"
	"ShipRelay/internal/model"
)

// RuleRepo defines the automation rule repository interface. Rule definition
// fields are authored by an external surface; the engine only mutates stats
// and execution history.
type RuleRepo interface {
	GetRule(ctx context.Context, id int64) (*data.AutomationRule, error)
	ListRules(ctx context.Context) ([]*data.AutomationRule, error)
	// ListEnabledByEvent returns enabled rules for the event type, sorted by
	// priority descending with ties broken by creation order.
	ListEnabledByEvent(ctx context.Context, event string) ([]*data.AutomationRule, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	// RecordExecution appends an execution record, evicts history beyond the
	// cap, and folds the outcome into the rule's aggregate stats.
	RecordExecution(ctx context.Context, ruleID int64, rec *model.ExecutionRecord) error
	ListHistory(ctx context.Context, ruleID int64, limit int) ([]*data.RuleExecution, error)
}

// RuleCounterRepo tracks short-lived execution counters backing the
// per-day and per-order execution ceilings. Implementations degrade
// gracefully: a counter backend failure must not block rule execution.
type RuleCounterRepo interface {
	IncrementDaily(ctx context.Context, ruleID int64) (int64, error)
	GetDailyCount(ctx context.Context, ruleID int64) (int64, error)
	IncrementOrder(ctx context.Context, ruleID, orderID int64) (int64, error)
	GetOrderCount(ctx context.Context, ruleID, orderID int64) (int64, error)
}
