package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule trigger event types.
const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"
	EventTagApplied   = "tag_applied"
	EventTagRemoved   = "tag_removed"
)

// ValidEvent reports whether s is a known rule trigger event type.
func ValidEvent(s string) bool {
	switch s {
	case EventOrderCreated, EventOrderUpdated, EventTagApplied, EventTagRemoved:
		return true
	}
	return false
}

// NumericRange bounds a numeric order attribute. Nil bounds are open.
type NumericRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v falls inside the range.
func (r *NumericRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// DestinationCondition matches the order's shipping address. Empty slices
// match anything; Residential nil means either.
type DestinationCondition struct {
	Countries   []string `json:"countries,omitempty"`
	States      []string `json:"states,omitempty"`
	Zips        []string `json:"zips,omitempty"`
	Residential *bool    `json:"residential,omitempty"`
}

// TagCondition is the tag predicate group of a rule trigger.
type TagCondition struct {
	IncludeAll []string `json:"include_all,omitempty"`
	IncludeAny []string `json:"include_any,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`
}

// TimeWindowCondition restricts execution to a time-of-day and day-of-week
// window. Start and End are "HH:MM" in the engine's local time. Days are
// time.Weekday values; empty means every day.
type TimeWindowCondition struct {
	Start string         `json:"start,omitempty"`
	End   string         `json:"end,omitempty"`
	Days  []time.Weekday `json:"days,omitempty"`
}

// TagRecencyCondition matches orders whose tag history shows the given tag
// added or removed within the last WithinMinutes.
type TagRecencyCondition struct {
	Tag           string `json:"tag"`
	Action        string `json:"action"` // "added" or "removed"
	WithinMinutes int    `json:"within_minutes"`
}

// RuleConditions is the parsed, validated trigger condition set of a rule.
// Each non-nil group must pass for the rule to match (AND semantics).
type RuleConditions struct {
	OrderValue  *NumericRange         `json:"order_value,omitempty"`
	Weight      *NumericRange         `json:"weight,omitempty"`
	ItemCount   *NumericRange         `json:"item_count,omitempty"`
	Destination *DestinationCondition `json:"destination,omitempty"`
	Tags        *TagCondition         `json:"tags,omitempty"`
	TimeWindow  *TimeWindowCondition  `json:"time_window,omitempty"`
	TagRecency  *TagRecencyCondition  `json:"tag_recency,omitempty"`
}

// ParseConditions decodes and validates a rule's condition JSON once at load
// time, so evaluation never interprets raw JSON. An empty document yields an
// always-matching condition set.
func ParseConditions(raw string) (*RuleConditions, error) {
	c := &RuleConditions{}
	if raw == "" || raw == "null" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(raw), c); err != nil {
		return nil, fmt.Errorf("failed to parse rule conditions: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects condition documents that could never be evaluated.
func (c *RuleConditions) Validate() error {
	for name, r := range map[string]*NumericRange{
		"order_value": c.OrderValue,
		"weight":      c.Weight,
		"item_count":  c.ItemCount,
	} {
		if r != nil && r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("invalid %s range: min %v greater than max %v", name, *r.Min, *r.Max)
		}
	}
	if tw := c.TimeWindow; tw != nil {
		for _, v := range []string{tw.Start, tw.End} {
			if v == "" {
				continue
			}
			if _, err := time.Parse("15:04", v); err != nil {
				return fmt.Errorf("invalid time window bound %q: %w", v, err)
			}
		}
	}
	if tr := c.TagRecency; tr != nil {
		if tr.Tag == "" {
			return fmt.Errorf("tag recency condition requires a tag")
		}
		if tr.Action != TagActionAdded && tr.Action != TagActionRemoved {
			return fmt.Errorf("invalid tag recency action %q", tr.Action)
		}
		if tr.WithinMinutes <= 0 {
			return fmt.Errorf("tag recency condition requires within_minutes > 0")
		}
	}
	return nil
}

// Rule action types, applied in this fixed order.
const (
	ActionTypeTagging          = "tagging"
	ActionTypeShippingOverride = "shipping_override"
	ActionTypeWorkflow         = "workflow"
	ActionTypeNotification     = "notification"
	ActionTypeIntegrationSync  = "integration_sync"
)

// TaggingAction adds and removes order tags. A tag added from an exclusive
// collection displaces any sibling tag already present.
type TaggingAction struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// ShippingOverrideAction overrides shipping attributes on the order.
type ShippingOverrideAction struct {
	Carrier string `json:"carrier,omitempty"`
	Service string `json:"service,omitempty"`
	Package string `json:"package,omitempty"`
}

// WorkflowAction assigns workflow and handling priority.
type WorkflowAction struct {
	Workflow string `json:"workflow,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// NotificationAction dispatches a message through the external notifier.
type NotificationAction struct {
	Channel  string `json:"channel"`
	Template string `json:"template"`
}

// IntegrationSyncAction pushes the order downstream through the resilient
// integration client.
type IntegrationSyncAction struct {
	IntegrationID int64  `json:"integration_id"`
	Endpoint      string `json:"endpoint"`
}

// RuleActions is the parsed action set of a rule.
type RuleActions struct {
	Tagging          *TaggingAction          `json:"tagging,omitempty"`
	ShippingOverride *ShippingOverrideAction `json:"shipping_override,omitempty"`
	Workflow         *WorkflowAction         `json:"workflow,omitempty"`
	Notification     *NotificationAction     `json:"notification,omitempty"`
	IntegrationSync  *IntegrationSyncAction  `json:"integration_sync,omitempty"`
}

// ParseActions decodes and validates a rule's action JSON.
func ParseActions(raw string) (*RuleActions, error) {
	a := &RuleActions{}
	if raw == "" || raw == "null" {
		return a, nil
	}
	if err := json.Unmarshal([]byte(raw), a); err != nil {
		return nil, fmt.Errorf("failed to parse rule actions: %w", err)
	}
	if n := a.Notification; n != nil && (n.Channel == "" || n.Template == "") {
		return nil, fmt.Errorf("notification action requires channel and template")
	}
	if s := a.IntegrationSync; s != nil && s.IntegrationID <= 0 {
		return nil, fmt.Errorf("integration sync action requires a valid integration_id")
	}
	return a, nil
}

// ActionResult records the outcome of one action step. One step failing does
// not halt the remaining steps.
type ActionResult struct {
	Type     string `json:"type"`
	Executed bool   `json:"executed"`
	Skipped  bool   `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// ExecutionRecord is one entry of a rule's capped execution history.
type ExecutionRecord struct {
	OrderID          int64         `json:"order_id"`
	ExecutedAt       time.Time     `json:"executed_at"`
	Success          bool          `json:"success"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
	ActionsPerformed []string      `json:"actions_performed"`
}

// MaxExecutionHistory caps per-rule execution history; oldest entries are
// evicted first.
const MaxExecutionHistory = 100
