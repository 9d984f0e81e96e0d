package biz

import (
	"strings"
	"time"

	"ShipRelay/internal/model"
)

// ConditionEvaluator decides whether an order snapshot matches a rule's
// trigger conditions. It is a pure predicate: no side effects, and identical
// inputs always produce identical results. Conditions arrive already parsed
// and validated (model.ParseConditions), never as raw JSON.
type ConditionEvaluator struct {
	// now is injectable so time-window and tag-recency predicates are
	// deterministic under test.
	now func() time.Time
}

// NewConditionEvaluator creates a condition evaluator.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{now: time.Now}
}

// Evaluate reports whether the order matches. Every present condition group
// must pass (AND across groups); an empty condition set matches everything.
func (e *ConditionEvaluator) Evaluate(order *model.OrderSnapshot, c *model.RuleConditions) bool {
	if order == nil || c == nil {
		return false
	}

	if c.OrderValue != nil && !c.OrderValue.Contains(order.Total) {
		return false
	}
	if c.Weight != nil && !c.Weight.Contains(order.Weight) {
		return false
	}
	if c.ItemCount != nil && !c.ItemCount.Contains(float64(order.ItemCount())) {
		return false
	}
	if c.Destination != nil && !matchDestination(&order.ShippingAddress, c.Destination) {
		return false
	}
	if c.Tags != nil && !matchTags(order, c.Tags) {
		return false
	}
	if c.TimeWindow != nil && !e.inTimeWindow(c.TimeWindow) {
		return false
	}
	if c.TagRecency != nil && !e.matchTagRecency(order, c.TagRecency) {
		return false
	}
	return true
}

// matchDestination checks the shipping address against the destination
// condition. Empty lists match anything.
func matchDestination(addr *model.Address, d *model.DestinationCondition) bool {
	if len(d.Countries) > 0 && !containsFold(d.Countries, addr.Country) {
		return false
	}
	if len(d.States) > 0 && !containsFold(d.States, addr.State) {
		return false
	}
	if len(d.Zips) > 0 && !matchZip(d.Zips, addr.Zip) {
		return false
	}
	if d.Residential != nil && *d.Residential != addr.Residential {
		return false
	}
	return true
}

// matchZip matches exact zips or prefix patterns ending in '*'.
func matchZip(patterns []string, zip string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(zip, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if p == zip {
			return true
		}
	}
	return false
}

// matchTags applies the three tag predicates: includeAll requires every
// listed tag, includeAny at least one, exclude fails on any present.
func matchTags(order *model.OrderSnapshot, t *model.TagCondition) bool {
	for _, tag := range t.IncludeAll {
		if !order.HasTag(tag) {
			return false
		}
	}
	if len(t.IncludeAny) > 0 {
		found := false
		for _, tag := range t.IncludeAny {
			if order.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range t.Exclude {
		if order.HasTag(tag) {
			return false
		}
	}
	return true
}

// inTimeWindow checks the current time against the time-of-day and
// day-of-week window. A window spanning midnight (start > end) wraps.
func (e *ConditionEvaluator) inTimeWindow(w *model.TimeWindowCondition) bool {
	now := e.now()

	if len(w.Days) > 0 {
		dayOK := false
		for _, d := range w.Days {
			if now.Weekday() == d {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	if w.Start == "" && w.End == "" {
		return true
	}

	minutes := now.Hour()*60 + now.Minute()
	start := parseClock(w.Start, 0)
	end := parseClock(w.End, 24*60-1)

	if start <= end {
		return minutes >= start && minutes <= end
	}
	// Window wraps midnight, e.g. 22:00-06:00.
	return minutes >= start || minutes <= end
}

// parseClock converts "HH:MM" to minutes since midnight. Validation happened
// at rule load; a malformed value falls back to def.
func parseClock(v string, def int) int {
	if v == "" {
		return def
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return def
	}
	return t.Hour()*60 + t.Minute()
}

// matchTagRecency checks the snapshot's tag history for the given tag being
// added or removed within the window.
func (e *ConditionEvaluator) matchTagRecency(order *model.OrderSnapshot, c *model.TagRecencyCondition) bool {
	cutoff := e.now().Add(-time.Duration(c.WithinMinutes) * time.Minute)
	for _, entry := range order.TagHistory {
		if entry.Tag == c.Tag && entry.Action == c.Action && entry.At.After(cutoff) {
			return true
		}
	}
	return false
}

// containsFold reports whether list contains s, case-insensitively.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
