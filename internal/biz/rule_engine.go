package biz

import (
	"context"
	"fmt"
	"time"

	"ShipRelay/internal/data"
	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RuleOutcome summarizes what happened to one rule for one event. Kind is
// set for machine-readable skip reasons, such as an execution ceiling.
type RuleOutcome struct {
	RuleID   int64                `json:"rule_id"`
	RuleName string               `json:"rule_name"`
	Skipped  bool                 `json:"skipped"`
	Reason   string               `json:"reason,omitempty"`
	Kind     model.ErrorKind      `json:"kind,omitempty"`
	Success  bool                 `json:"success"`
	Actions  []model.ActionResult `json:"actions,omitempty"`
}

// parsedRule is a rule's condition and action documents decoded once at load
// time and cached by (id, updated_at).
type parsedRule struct {
	conditions *model.RuleConditions
	actions    *model.RuleActions
}

// RuleEngine drives tag-driven automation. On a domain event it selects the
// enabled rules for that event in priority order and, per rule, checks the
// execution ceilings, evaluates conditions, executes actions, and records
// history and stats. Rules are independent: one rule failing never prevents
// evaluation of the next.
type RuleEngine struct {
	rules     RuleRepo
	counters  RuleCounterRepo
	orders    OrderRepo
	evaluator *ConditionEvaluator
	executor  *ActionExecutor
	audit     AuditLogger

	cache  *lru.Cache[string, *parsedRule]
	now    func() time.Time
	logger *log.Helper
}

// NewRuleEngine creates a rule engine. cacheSize bounds the parsed-rule LRU.
func NewRuleEngine(
	rules RuleRepo,
	counters RuleCounterRepo,
	orders OrderRepo,
	evaluator *ConditionEvaluator,
	executor *ActionExecutor,
	audit AuditLogger,
	cacheSize int,
	logger log.Logger,
) (*RuleEngine, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *parsedRule](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule cache: %w", err)
	}
	return &RuleEngine{
		rules:     rules,
		counters:  counters,
		orders:    orders,
		evaluator: evaluator,
		executor:  executor,
		audit:     audit,
		cache:     cache,
		now:       time.Now,
		logger:    log.NewHelper(logger),
	}, nil
}

// HandleEvent processes one domain event for one order. Events for
// different orders may be handled concurrently; rules within one event run
// strictly in priority order.
func (e *RuleEngine) HandleEvent(ctx context.Context, event string, orderID int64) ([]RuleOutcome, error) {
	order, err := e.orders.GetSnapshot(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}

	rules, err := e.rules.ListEnabledByEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for event %s: %w", event, err)
	}

	outcomes := make([]RuleOutcome, 0, len(rules))
	for _, rule := range rules {
		outcomes = append(outcomes, e.runRule(ctx, rule, order))
	}
	return outcomes, nil
}

// runRule evaluates and executes one rule for one order. Panics from action
// execution are contained here so the next rule still runs.
func (e *RuleEngine) runRule(ctx context.Context, rule *data.AutomationRule, order *model.OrderSnapshot) (outcome RuleOutcome) {
	outcome = RuleOutcome{RuleID: rule.ID, RuleName: rule.Name}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("rule execution panicked",
				"rule_id", rule.ID,
				"order_id", order.ID,
				"panic", r)
			outcome.Success = false
			outcome.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	if !rule.Enabled {
		outcome.Skipped = true
		outcome.Reason = "rule disabled"
		return outcome
	}

	if reason := e.checkLimits(ctx, rule, order.ID); reason != "" {
		// Ceiling hit: the rule is skipped without recording a failure.
		e.logger.Debugw("rule skipped",
			"rule_id", rule.ID,
			"order_id", order.ID,
			"reason", reason)
		outcome.Skipped = true
		outcome.Reason = reason
		outcome.Kind = model.KindExecutionLimitExceeded
		return outcome
	}

	parsed, err := e.parse(rule)
	if err != nil {
		e.logger.Errorw("rule has invalid definition, skipping",
			"rule_id", rule.ID,
			"error", err)
		outcome.Skipped = true
		outcome.Reason = "invalid definition"
		return outcome
	}

	if !e.evaluator.Evaluate(order, parsed.conditions) {
		outcome.Skipped = true
		outcome.Reason = "conditions not met"
		return outcome
	}

	start := e.now()
	results := e.executor.Execute(ctx, order, parsed.actions, rule.ID)
	duration := e.now().Sub(start)

	var performed []string
	var firstErr string
	for _, res := range results {
		if res.Executed {
			performed = append(performed, res.Type)
		}
		if res.Error != "" && firstErr == "" {
			firstErr = fmt.Sprintf("%s: %s", res.Type, res.Error)
		}
	}
	success := firstErr == ""

	e.record(ctx, rule, order.ID, &model.ExecutionRecord{
		OrderID:          order.ID,
		ExecutedAt:       start,
		Success:          success,
		Duration:         duration,
		Error:            firstErr,
		ActionsPerformed: performed,
	})

	outcome.Success = success
	outcome.Actions = results
	if !success {
		outcome.Reason = firstErr
	}
	return outcome
}

// checkLimits applies the execution ceilings; a non-empty return is the
// skip reason. Unset limits (zero) never gate.
func (e *RuleEngine) checkLimits(ctx context.Context, rule *data.AutomationRule, orderID int64) string {
	if rule.MaxExecutions > 0 && rule.TotalExecutions >= rule.MaxExecutions {
		return "total execution ceiling reached"
	}

	if rule.MaxPerDay > 0 {
		count, err := e.counters.GetDailyCount(ctx, rule.ID)
		if err != nil {
			e.logger.Warnw("daily counter unavailable, allowing execution",
				"rule_id", rule.ID, "error", err)
		} else if count >= rule.MaxPerDay {
			return "daily execution ceiling reached"
		}
	}

	if rule.CooldownMinutes > 0 && rule.LastExecuted != nil {
		next := rule.LastExecuted.Add(time.Duration(rule.CooldownMinutes) * time.Minute)
		if e.now().Before(next) {
			return fmt.Sprintf("cooling down until %s", next.Format(time.RFC3339))
		}
	}

	if rule.MaxPerOrder > 0 {
		count, err := e.counters.GetOrderCount(ctx, rule.ID, orderID)
		if err != nil {
			e.logger.Warnw("per-order counter unavailable, allowing execution",
				"rule_id", rule.ID, "error", err)
		} else if count >= rule.MaxPerOrder {
			return "per-order execution ceiling reached"
		}
	}

	return ""
}

// parse returns the rule's decoded condition/action documents, reusing the
// cache across events until the rule definition changes.
func (e *RuleEngine) parse(rule *data.AutomationRule) (*parsedRule, error) {
	key := fmt.Sprintf("%d:%d", rule.ID, rule.UpdatedAt.UnixNano())
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	conditions, err := model.ParseConditions(rule.ConditionsJSON)
	if err != nil {
		return nil, err
	}
	actions, err := model.ParseActions(rule.ActionsJSON)
	if err != nil {
		return nil, err
	}

	parsed := &parsedRule{conditions: conditions, actions: actions}
	e.cache.Add(key, parsed)
	return parsed, nil
}

// record persists the execution record, bumps the limit counters, and writes
// the audit entry. Recording failures are logged, never propagated: the
// actions already ran.
func (e *RuleEngine) record(ctx context.Context, rule *data.AutomationRule, orderID int64, rec *model.ExecutionRecord) {
	if err := e.rules.RecordExecution(ctx, rule.ID, rec); err != nil {
		e.logger.Errorw("failed to record rule execution",
			"rule_id", rule.ID,
			"order_id", orderID,
			"error", err)
	}

	if _, err := e.counters.IncrementDaily(ctx, rule.ID); err != nil {
		e.logger.Warnw("failed to bump daily counter", "rule_id", rule.ID, "error", err)
	}
	if _, err := e.counters.IncrementOrder(ctx, rule.ID, orderID); err != nil {
		e.logger.Warnw("failed to bump per-order counter", "rule_id", rule.ID, "error", err)
	}

	e.audit.LogRuleExecution(ctx, rule.ID, orderID, rec.Success, rec.Duration, rec.ActionsPerformed)
}
