package data

import (
	"context"
	"encoding/json"
	"time"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for the audit_logs table. SubjectType is
// "integration" or "rule"; Operator is empty for system-initiated events.
type AuditLog struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	SubjectType string    `gorm:"column:subject_type;type:varchar(20);not null;index:idx_subject"`
	SubjectID   int64     `gorm:"column:subject_id;not null;index:idx_subject"`
	EventType   string    `gorm:"column:event_type;type:varchar(50);not null"`
	Details     string    `gorm:"column:details;type:json"` // JSON string
	Operator    string    `gorm:"column:operator;type:varchar(100);default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	subjectIntegration = "integration"
	subjectRule        = "rule"
)

// AuditLoggerImpl implements biz.AuditLogger interface
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger with async channel
func NewAuditLogger(db *gorm.DB, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async logging
	go al.start()

	return al
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write audit log",
				"subject_type", event.SubjectType,
				"subject_id", event.SubjectID,
				"event_type", event.EventType,
				"error", err)
		}
	}
}

// enqueue sends the event to the writer goroutine without blocking the call
// path; a full buffer drops the event with a warning.
func (a *AuditLoggerImpl) enqueue(event *AuditLog) {
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"subject_type", event.SubjectType,
			"subject_id", event.SubjectID,
			"event_type", event.EventType)
	}
}

func (a *AuditLoggerImpl) log(subjectType string, subjectID int64, eventType, operator string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&AuditLog{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		EventType:   eventType,
		Details:     string(detailsJSON),
		Operator:    operator,
	})
}

// LogCircuitOpened logs a circuit breaker trip
func (a *AuditLoggerImpl) LogCircuitOpened(ctx context.Context, integrationID int64, category string, failureCount int, openedAt time.Time) {
	a.log(subjectIntegration, integrationID, model.AuditEventCircuitOpened, "", map[string]interface{}{
		"category":      category,
		"failure_count": failureCount,
		"opened_at":     openedAt.Format(time.RFC3339),
	})
}

// LogCircuitRecovered logs a circuit breaker recovery
func (a *AuditLoggerImpl) LogCircuitRecovered(ctx context.Context, integrationID int64, category string, openFor time.Duration) {
	a.log(subjectIntegration, integrationID, model.AuditEventCircuitRecovered, "", map[string]interface{}{
		"category":         category,
		"open_for_seconds": openFor.Seconds(),
	})
}

// LogIntegrationDisabled logs autonomous sync being switched off after the
// consecutive-error ceiling was crossed
func (a *AuditLoggerImpl) LogIntegrationDisabled(ctx context.Context, integrationID int64, consecutiveErrors int, lastError string) {
	a.log(subjectIntegration, integrationID, model.AuditEventIntegrationDisabled, "", map[string]interface{}{
		"consecutive_errors": consecutiveErrors,
		"last_error":         lastError,
	})
}

// LogSyncReenabled logs an operator switching autonomous sync back on
func (a *AuditLoggerImpl) LogSyncReenabled(ctx context.Context, integrationID int64, operator string) {
	a.log(subjectIntegration, integrationID, model.AuditEventSyncReenabled, operator, map[string]interface{}{})
}

// LogRuleExecution logs one automation rule execution summary
func (a *AuditLoggerImpl) LogRuleExecution(ctx context.Context, ruleID, orderID int64, success bool, duration time.Duration, actions []string) {
	a.log(subjectRule, ruleID, model.AuditEventRuleExecuted, "", map[string]interface{}{
		"order_id":          orderID,
		"success":           success,
		"duration_ms":       duration.Milliseconds(),
		"actions_performed": actions,
	})
}
