package model

import "time"

// CircuitOpenedEvent is published when a breaker trips for an integration
// operation category.
type CircuitOpenedEvent struct {
	IntegrationID   int64
	IntegrationName string
	Category        string
	FailureCount    int
	OpenedAt        time.Time
}

// CircuitRecoveredEvent is published when a half-open probe succeeds and the
// breaker closes again.
type CircuitRecoveredEvent struct {
	IntegrationID   int64
	IntegrationName string
	Category        string
	OpenFor         time.Duration
}

// IntegrationDisabledEvent is published when consecutive failures cross the
// hard ceiling and autonomous sync is switched off. This escalation is
// independent of the circuit breaker.
type IntegrationDisabledEvent struct {
	IntegrationID     int64
	IntegrationName   string
	ConsecutiveErrors int
	LastError         string
	DisabledAt        time.Time
}

// TagsAppliedEvent is published after the action executor changes an order's
// tags, for dashboard and notifier subscribers.
type TagsAppliedEvent struct {
	OrderID int64
	RuleID  int64
	Added   []string
	Removed []string
	At      time.Time
}
