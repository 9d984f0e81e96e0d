package model

// Audit event type constants
const (
	AuditEventCircuitOpened       = "CIRCUIT_OPENED"
	AuditEventCircuitRecovered    = "CIRCUIT_RECOVERED"
	AuditEventIntegrationDisabled = "INTEGRATION_DISABLED"
	AuditEventSyncReenabled       = "SYNC_REENABLED"
	AuditEventRuleExecuted        = "RULE_EXECUTED"
)
