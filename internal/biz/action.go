package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// ActionExecutor applies a rule's actions to an order in a fixed order:
// tagging, shipping overrides, workflow assignment, notification, and
// downstream integration sync. Execution is best-effort, not transactional:
// one failing step records its error and the remaining steps still run.
type ActionExecutor struct {
	orders   OrderRepo
	client   *ResilientClient
	notifier Notifier
	webhook  WebhookService

	// exclusiveSets are the named collections of mutually exclusive tags.
	// An entity carries at most one member of a collection at any time,
	// enforced here at write time.
	exclusiveSets map[string][]string
	logger        *log.Helper
}

// NewActionExecutor creates an action executor with the configured exclusive
// tag collections.
func NewActionExecutor(orders OrderRepo, client *ResilientClient, notifier Notifier, webhook WebhookService, exclusiveSets map[string][]string, logger log.Logger) *ActionExecutor {
	return &ActionExecutor{
		orders:        orders,
		client:        client,
		notifier:      notifier,
		webhook:       webhook,
		exclusiveSets: exclusiveSets,
		logger:        log.NewHelper(logger),
	}
}

// Execute applies the parsed actions to the order and returns one result per
// action step, in execution order.
func (x *ActionExecutor) Execute(ctx context.Context, order *model.OrderSnapshot, actions *model.RuleActions, ruleID int64) []model.ActionResult {
	var results []model.ActionResult

	record := func(actionType string, present bool, err error) {
		res := model.ActionResult{Type: actionType}
		switch {
		case !present:
			res.Skipped = true
		case err != nil:
			res.Error = err.Error()
			x.logger.Warnw("action failed, continuing with remaining actions",
				"rule_id", ruleID,
				"order_id", order.ID,
				"action", actionType,
				"error", err)
		default:
			res.Executed = true
		}
		results = append(results, res)
	}

	record(model.ActionTypeTagging, actions.Tagging != nil, x.applyTagging(ctx, order, actions.Tagging, ruleID))
	record(model.ActionTypeShippingOverride, actions.ShippingOverride != nil, x.applyShippingOverride(ctx, order, actions.ShippingOverride))
	record(model.ActionTypeWorkflow, actions.Workflow != nil, x.applyWorkflow(ctx, order, actions.Workflow))
	record(model.ActionTypeNotification, actions.Notification != nil, x.applyNotification(ctx, order, actions.Notification))
	record(model.ActionTypeIntegrationSync, actions.IntegrationSync != nil, x.applySync(ctx, order, actions.IntegrationSync))

	return results
}

// applyTagging computes the tag changes, enforcing exclusive collections:
// before adding a member of a collection, any sibling already on the order
// is removed in the same write, never additively.
func (x *ActionExecutor) applyTagging(ctx context.Context, order *model.OrderSnapshot, action *model.TaggingAction, ruleID int64) error {
	if action == nil {
		return nil
	}

	add, remove := x.resolveTagChanges(order, action)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}

	if err := x.orders.UpdateTags(ctx, order.ID, add, remove); err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}

	x.logger.Infow("tags applied",
		"order_id", order.ID,
		"rule_id", ruleID,
		"added", add,
		"removed", remove)

	if err := x.webhook.NotifyTagsApplied(ctx, &model.TagsAppliedEvent{
		OrderID: order.ID,
		RuleID:  ruleID,
		Added:   add,
		Removed: remove,
		At:      time.Now(),
	}); err != nil {
		x.logger.Warnw("tags-applied webhook failed", "order_id", order.ID, "error", err)
	}
	return nil
}

// resolveTagChanges expands the action's add/remove lists with exclusive
// collection displacements against the order's current tags.
func (x *ActionExecutor) resolveTagChanges(order *model.OrderSnapshot, action *model.TaggingAction) (add, remove []string) {
	removeSet := make(map[string]bool, len(action.Remove))
	for _, t := range action.Remove {
		if order.HasTag(t) {
			removeSet[t] = true
		}
	}

	for _, tag := range action.Add {
		for _, siblings := range x.exclusiveSets {
			if !contains(siblings, tag) {
				continue
			}
			for _, sibling := range siblings {
				if sibling != tag && order.HasTag(sibling) {
					removeSet[sibling] = true
				}
			}
		}
		if !order.HasTag(tag) {
			add = append(add, tag)
		}
	}

	for t := range removeSet {
		remove = append(remove, t)
	}
	return add, remove
}

func (x *ActionExecutor) applyShippingOverride(ctx context.Context, order *model.OrderSnapshot, action *model.ShippingOverrideAction) error {
	if action == nil {
		return nil
	}
	if err := x.orders.ApplyShippingOverride(ctx, order.ID, action); err != nil {
		return fmt.Errorf("failed to apply shipping override: %w", err)
	}
	return nil
}

func (x *ActionExecutor) applyWorkflow(ctx context.Context, order *model.OrderSnapshot, action *model.WorkflowAction) error {
	if action == nil {
		return nil
	}
	if err := x.orders.AssignWorkflow(ctx, order.ID, action.Workflow, action.Priority); err != nil {
		return fmt.Errorf("failed to assign workflow: %w", err)
	}
	return nil
}

func (x *ActionExecutor) applyNotification(ctx context.Context, order *model.OrderSnapshot, action *model.NotificationAction) error {
	if action == nil {
		return nil
	}
	if err := x.notifier.Send(ctx, action.Channel, action.Template, order); err != nil {
		return fmt.Errorf("failed to dispatch notification: %w", err)
	}
	return nil
}

// applySync pushes the order downstream through the resilient client; the
// full resilience stack (rate limit, breaker, retry, auto-fix) applies.
func (x *ActionExecutor) applySync(ctx context.Context, order *model.OrderSnapshot, action *model.IntegrationSyncAction) error {
	if action == nil {
		return nil
	}

	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order for sync: %w", err)
	}

	endpoint := action.Endpoint
	if endpoint == "" {
		endpoint = "/orders"
	}

	_, err = x.client.Execute(ctx, action.IntegrationID, model.CategoryOrders, &model.Request{
		Method:   "POST",
		Endpoint: endpoint,
		Headers:  map[string]string{"Content-Type": "application/json"},
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("integration sync failed: %w", err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
