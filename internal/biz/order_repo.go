package biz

import (
	"context"

	"ShipRelay/internal/model"
)

// OrderRepo supplies read-only order snapshots and applies the mutations the
// action executor produces. Order CRUD itself lives outside the core.
type OrderRepo interface {
	GetSnapshot(ctx context.Context, orderID int64) (*model.OrderSnapshot, error)
	// UpdateTags applies tag changes and records them in the order's tag
	// history. Tag writes for one order are serialized by the repository so
	// racing rules cannot interleave a single swap.
	UpdateTags(ctx context.Context, orderID int64, add, remove []string) error
	ApplyShippingOverride(ctx context.Context, orderID int64, override *model.ShippingOverrideAction) error
	AssignWorkflow(ctx context.Context, orderID int64, workflow, priority string) error
}
