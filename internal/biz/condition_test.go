package biz

import (
	"testing"
	"time"

	"ShipRelay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func testOrder() *model.OrderSnapshot {
	return &model.OrderSnapshot{
		ID:     9001,
		Number: "SR-10042",
		Tags:   []string{"wholesale", "fragile"},
		Total:  250.00,
		Weight: 12.5,
		Items: []model.OrderItem{
			{SKU: "MUG-01", Quantity: 2, Price: 25},
			{SKU: "BOX-XL", Quantity: 1, Price: 200},
		},
		ShippingAddress: model.Address{
			Country:     "US",
			State:       "CA",
			City:        "Oakland",
			Zip:         "94607",
			Residential: true,
		},
		Customer: model.CustomerProfile{OrderCount: 4, TotalSpent: 830},
	}
}

func TestEvaluate_EmptyConditionsMatchEverything(t *testing.T) {
	e := NewConditionEvaluator()
	assert.True(t, e.Evaluate(testOrder(), &model.RuleConditions{}))
}

func TestEvaluate_NilInputs(t *testing.T) {
	e := NewConditionEvaluator()
	assert.False(t, e.Evaluate(nil, &model.RuleConditions{}))
	assert.False(t, e.Evaluate(testOrder(), nil))
}

func TestEvaluate_NumericRanges(t *testing.T) {
	e := NewConditionEvaluator()

	tests := []struct {
		name string
		cond model.RuleConditions
		want bool
	}{
		{"order value inside", model.RuleConditions{OrderValue: &model.NumericRange{Min: f64(100), Max: f64(500)}}, true},
		{"order value below min", model.RuleConditions{OrderValue: &model.NumericRange{Min: f64(300)}}, false},
		{"order value above max", model.RuleConditions{OrderValue: &model.NumericRange{Max: f64(100)}}, false},
		{"order value boundary inclusive", model.RuleConditions{OrderValue: &model.NumericRange{Min: f64(250), Max: f64(250)}}, true},
		{"weight open-ended min", model.RuleConditions{Weight: &model.NumericRange{Min: f64(10)}}, true},
		{"weight too heavy", model.RuleConditions{Weight: &model.NumericRange{Max: f64(10)}}, false},
		{"item count matches quantities", model.RuleConditions{ItemCount: &model.NumericRange{Min: f64(3), Max: f64(3)}}, true},
		{"item count too few", model.RuleConditions{ItemCount: &model.NumericRange{Min: f64(5)}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate(testOrder(), &tt.cond))
		})
	}
}

func TestEvaluate_Destination(t *testing.T) {
	e := NewConditionEvaluator()
	residential := true
	commercial := false

	tests := []struct {
		name string
		cond model.DestinationCondition
		want bool
	}{
		{"country match case-insensitive", model.DestinationCondition{Countries: []string{"us", "CA"}}, true},
		{"country mismatch", model.DestinationCondition{Countries: []string{"DE", "FR"}}, false},
		{"state match", model.DestinationCondition{States: []string{"CA", "OR"}}, true},
		{"state mismatch", model.DestinationCondition{States: []string{"NY"}}, false},
		{"zip exact", model.DestinationCondition{Zips: []string{"94607"}}, true},
		{"zip prefix wildcard", model.DestinationCondition{Zips: []string{"946*"}}, true},
		{"zip prefix miss", model.DestinationCondition{Zips: []string{"100*"}}, false},
		{"residential required", model.DestinationCondition{Residential: &residential}, true},
		{"commercial required", model.DestinationCondition{Residential: &commercial}, false},
		{"all groups must pass", model.DestinationCondition{Countries: []string{"US"}, States: []string{"NY"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &model.RuleConditions{Destination: &tt.cond}
			assert.Equal(t, tt.want, e.Evaluate(testOrder(), cond))
		})
	}
}

func TestEvaluate_Tags(t *testing.T) {
	e := NewConditionEvaluator()

	tests := []struct {
		name string
		cond model.TagCondition
		want bool
	}{
		{"include all present", model.TagCondition{IncludeAll: []string{"wholesale", "fragile"}}, true},
		{"include all one missing", model.TagCondition{IncludeAll: []string{"wholesale", "gift"}}, false},
		{"include any one present", model.TagCondition{IncludeAny: []string{"gift", "fragile"}}, true},
		{"include any none present", model.TagCondition{IncludeAny: []string{"gift", "rush"}}, false},
		{"exclude absent tag", model.TagCondition{Exclude: []string{"gift"}}, true},
		{"exclude present tag", model.TagCondition{Exclude: []string{"fragile"}}, false},
		{"combined", model.TagCondition{IncludeAll: []string{"wholesale"}, Exclude: []string{"gift"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &model.RuleConditions{Tags: &tt.cond}
			assert.Equal(t, tt.want, e.Evaluate(testOrder(), cond))
		})
	}
}

func TestEvaluate_TimeWindow(t *testing.T) {
	e := NewConditionEvaluator()
	// Tuesday 14:30.
	e.now = func() time.Time { return time.Date(2026, 8, 4, 14, 30, 0, 0, time.UTC) }

	tests := []struct {
		name string
		cond model.TimeWindowCondition
		want bool
	}{
		{"inside window", model.TimeWindowCondition{Start: "09:00", End: "17:00"}, true},
		{"outside window", model.TimeWindowCondition{Start: "15:00", End: "17:00"}, false},
		{"boundary start inclusive", model.TimeWindowCondition{Start: "14:30", End: "15:00"}, true},
		{"wraps midnight, inside evening", model.TimeWindowCondition{Start: "22:00", End: "06:00"}, false},
		{"day matches", model.TimeWindowCondition{Days: []time.Weekday{time.Tuesday}}, true},
		{"day mismatch", model.TimeWindowCondition{Days: []time.Weekday{time.Saturday, time.Sunday}}, false},
		{"day and time both required", model.TimeWindowCondition{Days: []time.Weekday{time.Tuesday}, Start: "15:00", End: "16:00"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &model.RuleConditions{TimeWindow: &tt.cond}
			assert.Equal(t, tt.want, e.Evaluate(testOrder(), cond))
		})
	}
}

func TestEvaluate_TimeWindowWrapsMidnight(t *testing.T) {
	e := NewConditionEvaluator()
	cond := &model.RuleConditions{TimeWindow: &model.TimeWindowCondition{Start: "22:00", End: "06:00"}}

	e.now = func() time.Time { return time.Date(2026, 8, 4, 23, 15, 0, 0, time.UTC) }
	assert.True(t, e.Evaluate(testOrder(), cond))

	e.now = func() time.Time { return time.Date(2026, 8, 5, 5, 0, 0, 0, time.UTC) }
	assert.True(t, e.Evaluate(testOrder(), cond))

	e.now = func() time.Time { return time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC) }
	assert.False(t, e.Evaluate(testOrder(), cond))
}

func TestEvaluate_TagRecency(t *testing.T) {
	e := NewConditionEvaluator()
	now := time.Date(2026, 8, 4, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	order := testOrder()
	order.TagHistory = []model.TagHistoryEntry{
		{Tag: "rush", Action: model.TagActionAdded, At: now.Add(-10 * time.Minute)},
		{Tag: "gift", Action: model.TagActionRemoved, At: now.Add(-3 * time.Hour)},
	}

	recent := &model.RuleConditions{TagRecency: &model.TagRecencyCondition{
		Tag: "rush", Action: model.TagActionAdded, WithinMinutes: 30,
	}}
	assert.True(t, e.Evaluate(order, recent))

	tooOld := &model.RuleConditions{TagRecency: &model.TagRecencyCondition{
		Tag: "gift", Action: model.TagActionRemoved, WithinMinutes: 60,
	}}
	assert.False(t, e.Evaluate(order, tooOld))

	wrongAction := &model.RuleConditions{TagRecency: &model.TagRecencyCondition{
		Tag: "rush", Action: model.TagActionRemoved, WithinMinutes: 30,
	}}
	assert.False(t, e.Evaluate(order, wrongAction))
}

func TestEvaluate_AllGroupsANDed(t *testing.T) {
	e := NewConditionEvaluator()

	cond := &model.RuleConditions{
		OrderValue:  &model.NumericRange{Min: f64(100)},
		Destination: &model.DestinationCondition{Countries: []string{"US"}},
		Tags:        &model.TagCondition{IncludeAll: []string{"wholesale"}},
	}
	assert.True(t, e.Evaluate(testOrder(), cond))

	cond.Tags.IncludeAll = []string{"gift"}
	assert.False(t, e.Evaluate(testOrder(), cond))
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := NewConditionEvaluator()
	cond := &model.RuleConditions{
		OrderValue: &model.NumericRange{Min: f64(100), Max: f64(500)},
		Tags:       &model.TagCondition{IncludeAny: []string{"wholesale"}},
	}

	order := testOrder()
	first := e.Evaluate(order, cond)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, e.Evaluate(order, cond))
	}
}

func TestParseConditions_Validation(t *testing.T) {
	valid, err := model.ParseConditions(`{"order_value":{"min":100,"max":500}}`)
	require.NoError(t, err)
	assert.NotNil(t, valid.OrderValue)

	empty, err := model.ParseConditions("")
	require.NoError(t, err)
	assert.Nil(t, empty.OrderValue)

	_, err = model.ParseConditions(`{"order_value":{"min":500,"max":100}}`)
	assert.Error(t, err)

	_, err = model.ParseConditions(`{"time_window":{"start":"25:00"}}`)
	assert.Error(t, err)

	_, err = model.ParseConditions(`{"tag_recency":{"tag":"rush","action":"renamed","within_minutes":10}}`)
	assert.Error(t, err)

	_, err = model.ParseConditions(`{not json`)
	assert.Error(t, err)
}
