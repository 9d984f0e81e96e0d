package biz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"ShipRelay/internal/data"
	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuleRepo struct {
	rules     []*data.AutomationRule
	listErr   error
	recorded  []*model.ExecutionRecord
	recordErr error
}

func (f *fakeRuleRepo) GetRule(ctx context.Context, id int64) (*data.AutomationRule, error) {
	for _, r := range f.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("rule not found")
}

func (f *fakeRuleRepo) ListRules(ctx context.Context) ([]*data.AutomationRule, error) {
	return f.rules, nil
}

func (f *fakeRuleRepo) ListEnabledByEvent(ctx context.Context, event string) ([]*data.AutomationRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*data.AutomationRule
	for _, r := range f.rules {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleRepo) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return nil
}

func (f *fakeRuleRepo) RecordExecution(ctx context.Context, ruleID int64, rec *model.ExecutionRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, rec)
	return nil
}

func (f *fakeRuleRepo) ListHistory(ctx context.Context, ruleID int64, limit int) ([]*data.RuleExecution, error) {
	return nil, nil
}

type fakeCounters struct {
	daily map[int64]int64
	order map[string]int64

	dailyErr error
	orderErr error

	dailyIncs int
	orderIncs int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		daily: make(map[int64]int64),
		order: make(map[string]int64),
	}
}

func (f *fakeCounters) IncrementDaily(ctx context.Context, ruleID int64) (int64, error) {
	if f.dailyErr != nil {
		return 0, f.dailyErr
	}
	f.dailyIncs++
	f.daily[ruleID]++
	return f.daily[ruleID], nil
}

func (f *fakeCounters) GetDailyCount(ctx context.Context, ruleID int64) (int64, error) {
	if f.dailyErr != nil {
		return 0, f.dailyErr
	}
	return f.daily[ruleID], nil
}

func (f *fakeCounters) IncrementOrder(ctx context.Context, ruleID, orderID int64) (int64, error) {
	if f.orderErr != nil {
		return 0, f.orderErr
	}
	f.orderIncs++
	key := fmt.Sprintf("%d:%d", ruleID, orderID)
	f.order[key]++
	return f.order[key], nil
}

func (f *fakeCounters) GetOrderCount(ctx context.Context, ruleID, orderID int64) (int64, error) {
	if f.orderErr != nil {
		return 0, f.orderErr
	}
	return f.order[fmt.Sprintf("%d:%d", ruleID, orderID)], nil
}

// panickyOrderRepo panics on the first tag write, then behaves normally.
type panickyOrderRepo struct {
	fakeOrderRepo
	panicsLeft int
}

func (p *panickyOrderRepo) UpdateTags(ctx context.Context, orderID int64, add, remove []string) error {
	if p.panicsLeft > 0 {
		p.panicsLeft--
		panic("tag store corrupted")
	}
	return p.fakeOrderRepo.UpdateTags(ctx, orderID, add, remove)
}

type engineFixture struct {
	engine   *RuleEngine
	rules    *fakeRuleRepo
	counters *fakeCounters
	orders   OrderRepo
	audit    *fakeAudit
}

func newEngineFixture(t *testing.T, orders OrderRepo) *engineFixture {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)

	rules := &fakeRuleRepo{}
	counters := newFakeCounters()
	audit := &fakeAudit{}

	exclusive := map[string][]string{
		"shipping_speed": {"standard-shipping", "expedited-shipping", "overnight-shipping"},
	}
	executor := NewActionExecutor(orders, nil, &fakeNotifier{}, &fakeWebhook{}, exclusive, logger)

	engine, err := NewRuleEngine(rules, counters, orders, NewConditionEvaluator(), executor, audit, 8, logger)
	require.NoError(t, err)

	return &engineFixture{
		engine:   engine,
		rules:    rules,
		counters: counters,
		orders:   orders,
		audit:    audit,
	}
}

func taggingRule(id int64, priority int) *data.AutomationRule {
	return &data.AutomationRule{
		ID:             id,
		Name:           fmt.Sprintf("tag-rush-%d", id),
		Event:          model.EventOrderCreated,
		Priority:       priority,
		Enabled:        true,
		ConditionsJSON: `{}`,
		ActionsJSON:    `{"tagging":{"add":["rush"]}}`,
		UpdatedAt:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHandleEvent_OrderLoadFailure(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{})

	_, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load order")
}

func TestHandleEvent_RuleListFailure(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})
	fx.rules.listErr = errors.New("db gone")

	_, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.Error(t, err)
}

func TestHandleEvent_ExecutesRulesInOrder(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})
	fx.rules.rules = []*data.AutomationRule{taggingRule(1, 100), taggingRule(2, 50)}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, int64(1), outcomes[0].RuleID)
	assert.Equal(t, int64(2), outcomes[1].RuleID)
	assert.True(t, outcomes[0].Success)
	assert.True(t, outcomes[1].Success)
}

func TestHandleEvent_EventFiltering(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})
	created := taggingRule(1, 0)
	applied := taggingRule(2, 0)
	applied.Event = model.EventTagApplied
	fx.rules.rules = []*data.AutomationRule{created, applied}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventTagApplied, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, int64(2), outcomes[0].RuleID)
}

func TestRunRule_SkipReasons(t *testing.T) {
	now := time.Date(2026, 8, 4, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)

	tests := []struct {
		name   string
		mutate func(r *data.AutomationRule, fx *engineFixture)
		reason string
		kind   model.ErrorKind
	}{
		{
			"disabled",
			func(r *data.AutomationRule, fx *engineFixture) { r.Enabled = false },
			"rule disabled",
			"",
		},
		{
			"total ceiling",
			func(r *data.AutomationRule, fx *engineFixture) {
				r.MaxExecutions = 5
				r.TotalExecutions = 5
			},
			"total execution ceiling reached",
			model.KindExecutionLimitExceeded,
		},
		{
			"daily ceiling",
			func(r *data.AutomationRule, fx *engineFixture) {
				r.MaxPerDay = 2
				fx.counters.daily[r.ID] = 2
			},
			"daily execution ceiling reached",
			model.KindExecutionLimitExceeded,
		},
		{
			"cooldown",
			func(r *data.AutomationRule, fx *engineFixture) {
				r.CooldownMinutes = 30
				r.LastExecuted = &recent
			},
			"cooling down",
			model.KindExecutionLimitExceeded,
		},
		{
			"per-order ceiling",
			func(r *data.AutomationRule, fx *engineFixture) {
				r.MaxPerOrder = 1
				fx.counters.order["7:9001"] = 1
			},
			"per-order execution ceiling reached",
			model.KindExecutionLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})
			fx.engine.now = func() time.Time { return now }

			rule := taggingRule(7, 0)
			tt.mutate(rule, fx)
			fx.rules.rules = []*data.AutomationRule{rule}

			outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.True(t, outcomes[0].Skipped)
			assert.Contains(t, outcomes[0].Reason, tt.reason)
			assert.Equal(t, tt.kind, outcomes[0].Kind)

			// A ceiling skip records nothing.
			assert.Empty(t, fx.rules.recorded)
			assert.Zero(t, fx.audit.rules)
		})
	}
}

func TestRunRule_CounterBackendFailureAllowsExecution(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})
	fx.counters.dailyErr = errors.New("redis unavailable")

	rule := taggingRule(7, 0)
	rule.MaxPerDay = 1
	fx.rules.rules = []*data.AutomationRule{rule}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Skipped)
	assert.True(t, outcomes[0].Success)
}

func TestRunRule_InvalidDefinitionSkipped(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})

	bad := taggingRule(7, 0)
	bad.ConditionsJSON = `{not json`
	good := taggingRule(8, 0)
	fx.rules.rules = []*data.AutomationRule{bad, good}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, "invalid definition", outcomes[0].Reason)
	// The broken rule never blocks its siblings.
	assert.True(t, outcomes[1].Success)
}

func TestRunRule_ConditionsNotMet(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})

	rule := taggingRule(7, 0)
	rule.ConditionsJSON = `{"order_value":{"min":10000}}`
	fx.rules.rules = []*data.AutomationRule{rule}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, "conditions not met", outcomes[0].Reason)
	assert.Empty(t, fx.rules.recorded)
}

func TestRunRule_SuccessRecordsEverything(t *testing.T) {
	orders := &fakeOrderRepo{snapshot: testOrder()}
	fx := newEngineFixture(t, orders)
	fx.rules.rules = []*data.AutomationRule{taggingRule(7, 0)}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)

	assert.Equal(t, []string{"rush"}, orders.addedTags)

	require.Len(t, fx.rules.recorded, 1)
	rec := fx.rules.recorded[0]
	assert.Equal(t, int64(9001), rec.OrderID)
	assert.True(t, rec.Success)
	assert.Equal(t, []string{model.ActionTypeTagging}, rec.ActionsPerformed)

	assert.Equal(t, 1, fx.counters.dailyIncs)
	assert.Equal(t, 1, fx.counters.orderIncs)
	assert.Equal(t, 1, fx.audit.rules)
}

func TestRunRule_ActionFailureRecordedAsFailure(t *testing.T) {
	orders := &fakeOrderRepo{snapshot: testOrder(), tagsErr: errors.New("order locked")}
	fx := newEngineFixture(t, orders)
	fx.rules.rules = []*data.AutomationRule{taggingRule(7, 0)}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.False(t, outcomes[0].Skipped)
	assert.Contains(t, outcomes[0].Reason, "order locked")

	// The failed run still counts against the ceilings.
	require.Len(t, fx.rules.recorded, 1)
	assert.False(t, fx.rules.recorded[0].Success)
	assert.Equal(t, 1, fx.counters.dailyIncs)
}

func TestRunRule_PanicContained(t *testing.T) {
	orders := &panickyOrderRepo{panicsLeft: 1}
	orders.snapshot = testOrder()
	fx := newEngineFixture(t, orders)
	fx.rules.rules = []*data.AutomationRule{taggingRule(1, 100), taggingRule(2, 50)}

	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.False(t, outcomes[0].Success)
	assert.Contains(t, outcomes[0].Reason, "panic")
	// The next rule still ran normally.
	assert.True(t, outcomes[1].Success)
	assert.Equal(t, []string{"rush"}, orders.addedTags)
}

func TestParse_CacheKeyedOnUpdatedAt(t *testing.T) {
	fx := newEngineFixture(t, &fakeOrderRepo{snapshot: testOrder()})

	rule := taggingRule(7, 0)
	fx.rules.rules = []*data.AutomationRule{rule}

	_, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)

	// Same id and updated_at: the cached parse is reused even though the
	// stored JSON is now unparseable.
	rule.ConditionsJSON = `{not json`
	outcomes, err := fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	assert.True(t, outcomes[0].Success)

	// Touching updated_at invalidates the cache entry.
	rule.UpdatedAt = rule.UpdatedAt.Add(time.Second)
	outcomes, err = fx.engine.HandleEvent(context.Background(), model.EventOrderCreated, 9001)
	require.NoError(t, err)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, "invalid definition", outcomes[0].Reason)
}
