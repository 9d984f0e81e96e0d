package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "ShipRelay/pkg/errors"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutomationRule is the GORM model for the automation_rules table. The
// definition columns (event, conditions, actions, limits) are authored by an
// external surface; the engine only mutates the stats block.
type AutomationRule struct {
	ID          int64  `gorm:"primaryKey;column:id"`
	Name        string `gorm:"column:name;size:100;not null"`
	Description string `gorm:"column:description;type:text"`
	// Event is the trigger event type (order_created, order_updated,
	// tag_applied, tag_removed).
	Event    string `gorm:"column:trigger_event;size:30;not null;index"`
	Priority int    `gorm:"column:priority;default:0;not null"`
	Enabled  bool   `gorm:"column:enabled;default:true;not null"`

	// ConditionsJSON and ActionsJSON are parsed and validated at load time
	// (model.ParseConditions / model.ParseActions), never interpreted raw.
	ConditionsJSON string `gorm:"column:conditions;type:json"`
	ActionsJSON    string `gorm:"column:actions;type:json"`

	// Execution ceilings; zero means unlimited.
	MaxExecutions   int64 `gorm:"column:max_executions;default:0;not null"`
	MaxPerDay       int64 `gorm:"column:max_per_day;default:0;not null"`
	MaxPerOrder     int64 `gorm:"column:max_per_order;default:0;not null"`
	CooldownMinutes int   `gorm:"column:cooldown_minutes;default:0;not null"`

	// Stats block
	TotalExecutions      int64      `gorm:"column:total_executions;default:0;not null"`
	SuccessfulExecutions int64      `gorm:"column:successful_executions;default:0;not null"`
	FailedExecutions     int64      `gorm:"column:failed_executions;default:0;not null"`
	AvgDurationMs        int64      `gorm:"column:avg_duration_ms;default:0;not null"`
	LastExecuted         *time.Time `gorm:"column:last_executed"`
	LastSuccess          *time.Time `gorm:"column:last_success"`
	LastError            string     `gorm:"column:last_error;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (AutomationRule) TableName() string {
	return "automation_rules"
}

// RuleExecution is the GORM model for the rule_executions table, the capped
// per-rule execution history.
type RuleExecution struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	RuleID     int64     `gorm:"column:rule_id;not null;index"`
	OrderID    int64     `gorm:"column:order_id;not null;index"`
	Success    bool      `gorm:"column:success;not null"`
	DurationMs int64     `gorm:"column:duration_ms;default:0;not null"`
	Error      string    `gorm:"column:error;type:text"`
	// Actions is the JSON list of action types that actually executed.
	Actions    string    `gorm:"column:actions;type:json"`
	ExecutedAt time.Time `gorm:"column:executed_at;not null"`
}

// TableName specifies the table name for GORM.
func (RuleExecution) TableName() string {
	return "rule_executions"
}

// RuleRepo implements biz.RuleRepo.
type RuleRepo struct {
	data   *Data
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewRuleRepo creates a new rule repository.
func NewRuleRepo(data *Data, db *gorm.DB, logger log.Logger) *RuleRepo {
	return &RuleRepo{
		data:   data,
		db:     db,
		cache:  data.GetCache(),
		logger: log.NewHelper(logger),
	}
}

// GetRule retrieves one rule, trying the cache first.
func (r *RuleRepo) GetRule(ctx context.Context, id int64) (*AutomationRule, error) {
	cacheKey := fmt.Sprintf("%s:%d", CacheKeyRule, id)

	if r.cache != nil {
		var cached AutomationRule
		if err := r.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, ErrCacheNotFound) {
			r.logger.Warnw("rule cache read failed", "rule_id", id, "error", err)
		}
	}

	var rule AutomationRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("rule not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get rule: %w", pkgerrors.ClassifyDBError(err))
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, &rule, TTLRule); err != nil {
			r.logger.Warnw("rule cache write failed", "rule_id", id, "error", err)
		}
	}

	return &rule, nil
}

// ListRules returns all rules, highest priority first with ties broken by
// creation order.
func (r *RuleRepo) ListRules(ctx context.Context) ([]*AutomationRule, error) {
	var rules []*AutomationRule
	if err := r.db.WithContext(ctx).Order("priority desc, id asc").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", pkgerrors.ClassifyDBError(err))
	}
	return rules, nil
}

// ListEnabledByEvent returns the enabled rules for one trigger event in
// execution order.
func (r *RuleRepo) ListEnabledByEvent(ctx context.Context, event string) ([]*AutomationRule, error) {
	var rules []*AutomationRule
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND trigger_event = ?", true, event).
		Order("priority desc, id asc").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for event %s: %w", event, pkgerrors.ClassifyDBError(err))
	}
	return rules, nil
}

// SetEnabled flips a rule on or off.
func (r *RuleRepo) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result := r.db.WithContext(ctx).
		Model(&AutomationRule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"enabled":    enabled,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update rule: %w", pkgerrors.ClassifyDBError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("rule not found: %d", id)
	}

	r.clearCache(ctx, id)
	return nil
}

// RecordExecution appends one history entry, trims history beyond the cap
// (oldest first), and folds the outcome into the rule's stats, all in one
// transaction.
func (r *RuleRepo) RecordExecution(ctx context.Context, ruleID int64, rec *model.ExecutionRecord) error {
	actionsJSON, err := json.Marshal(rec.ActionsPerformed)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exec := &RuleExecution{
			RuleID:     ruleID,
			OrderID:    rec.OrderID,
			Success:    rec.Success,
			DurationMs: rec.Duration.Milliseconds(),
			Error:      rec.Error,
			Actions:    string(actionsJSON),
			ExecutedAt: rec.ExecutedAt,
		}
		if err := tx.Create(exec).Error; err != nil {
			return err
		}

		if err := trimHistory(tx, ruleID); err != nil {
			return err
		}

		// Lock the rule row for the fold so concurrent executions cannot
		// interleave their running-average updates.
		var cur AutomationRule
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", ruleID).
			First(&cur).Error; err != nil {
			return err
		}

		return tx.Model(&AutomationRule{}).
			Where("id = ?", ruleID).
			Updates(buildExecutionStatsUpdates(&cur, rec)).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", pkgerrors.ClassifyDBError(err))
	}

	r.clearCache(ctx, ruleID)
	return nil
}

// buildExecutionStatsUpdates computes the stats column updates for one
// execution. Average duration is a running average over total executions.
func buildExecutionStatsUpdates(cur *AutomationRule, rec *model.ExecutionRecord) map[string]interface{} {
	total := cur.TotalExecutions + 1
	newAvg := (cur.AvgDurationMs*cur.TotalExecutions + rec.Duration.Milliseconds()) / total

	updates := map[string]interface{}{
		"total_executions": total,
		"avg_duration_ms":  newAvg,
		"last_executed":    rec.ExecutedAt,
		"updated_at":       time.Now(),
	}

	if rec.Success {
		updates["successful_executions"] = cur.SuccessfulExecutions + 1
		updates["last_success"] = rec.ExecutedAt
	} else {
		updates["failed_executions"] = cur.FailedExecutions + 1
		updates["last_error"] = rec.Error
	}

	return updates
}

// trimHistory deletes the oldest entries beyond the history cap. MySQL
// cannot delete from a table referenced in a subquery directly, hence the
// derived table.
func trimHistory(tx *gorm.DB, ruleID int64) error {
	var count int64
	if err := tx.Model(&RuleExecution{}).Where("rule_id = ?", ruleID).Count(&count).Error; err != nil {
		return err
	}
	excess := count - model.MaxExecutionHistory
	if excess <= 0 {
		return nil
	}
	return tx.Exec(
		`DELETE FROM rule_executions WHERE id IN (
			SELECT id FROM (
				SELECT id FROM rule_executions WHERE rule_id = ? ORDER BY id ASC LIMIT ?
			) oldest
		)`, ruleID, excess).Error
}

// ListHistory returns the newest execution entries for one rule.
func (r *RuleRepo) ListHistory(ctx context.Context, ruleID int64, limit int) ([]*RuleExecution, error) {
	if limit <= 0 || limit > model.MaxExecutionHistory {
		limit = model.MaxExecutionHistory
	}
	var executions []*RuleExecution
	err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("id desc").
		Limit(limit).
		Find(&executions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rule history: %w", pkgerrors.ClassifyDBError(err))
	}
	return executions, nil
}

func (r *RuleRepo) clearCache(ctx context.Context, id int64) {
	if r.cache == nil {
		return
	}
	cacheKey := fmt.Sprintf("%s:%d", CacheKeyRule, id)
	if err := r.cache.Delete(ctx, cacheKey); err != nil {
		r.logger.Warnw("failed to clear rule cache", "rule_id", id, "error", err)
	}
}
