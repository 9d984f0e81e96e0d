package biz

import (
	"context"
	"time"
)

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogCircuitOpened logs a circuit breaker trip
	LogCircuitOpened(ctx context.Context, integrationID int64, category string, failureCount int, openedAt time.Time)

	// LogCircuitRecovered logs a circuit breaker recovery
	LogCircuitRecovered(ctx context.Context, integrationID int64, category string, openFor time.Duration)

	// LogIntegrationDisabled logs autonomous sync being switched off after
	// the consecutive-error ceiling was crossed
	LogIntegrationDisabled(ctx context.Context, integrationID int64, consecutiveErrors int, lastError string)

	// LogSyncReenabled logs an operator switching autonomous sync back on
	LogSyncReenabled(ctx context.Context, integrationID int64, operator string)

	// LogRuleExecution logs one automation rule execution summary
	LogRuleExecution(ctx context.Context, ruleID, orderID int64, success bool, duration time.Duration, actions []string)
}
