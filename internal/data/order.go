package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "ShipRelay/pkg/errors"

	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Order is the GORM model for the orders table. Structured attributes
// (tags, items, address, customer, tag history) are JSON columns decoded into
// the snapshot on read.
type Order struct {
	ID     int64   `gorm:"primaryKey;column:id"`
	Number string  `gorm:"column:number;size:50;not null;uniqueIndex"`
	Total  float64 `gorm:"column:total;not null"`
	Weight float64 `gorm:"column:weight;not null"`

	// Shipping override block, written by rule actions.
	Carrier string `gorm:"column:carrier;size:50;default:''"`
	Service string `gorm:"column:service;size:50;default:''"`
	Package string `gorm:"column:package;size:50;default:''"`

	Workflow string `gorm:"column:workflow;size:50;default:''"`
	Priority string `gorm:"column:priority;size:20;default:''"`

	Tags            string `gorm:"column:tags;type:json"`
	Items           string `gorm:"column:items;type:json"`
	ShippingAddress string `gorm:"column:shipping_address;type:json"`
	Customer        string `gorm:"column:customer;type:json"`
	TagHistory      string `gorm:"column:tag_history;type:json"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Order) TableName() string {
	return "orders"
}

// OrderRepo implements biz.OrderRepo. Tag writes for one order are serialized
// through a per-order lock so racing rules cannot interleave an exclusive-set
// swap.
type OrderRepo struct {
	db     *gorm.DB
	logger *log.Helper

	mu    sync.Mutex
	locks map[int64]*orderLock
}

// orderLock is a reference-counted per-order write lock. The refcount lets
// the repo drop a lock from the map as soon as no writer holds or waits on
// it, so the map stays bounded by in-flight writes rather than growing with
// every order ever touched.
type orderLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrderRepo creates a new order repository.
func NewOrderRepo(db *gorm.DB, logger log.Logger) *OrderRepo {
	return &OrderRepo{
		db:     db,
		logger: log.NewHelper(logger),
		locks:  make(map[int64]*orderLock),
	}
}

// lockOrder acquires the write lock for one order and returns its release
// function.
func (r *OrderRepo) lockOrder(orderID int64) func() {
	r.mu.Lock()
	l, ok := r.locks[orderID]
	if !ok {
		l = &orderLock{}
		r.locks[orderID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, orderID)
		}
		r.mu.Unlock()
	}
}

// GetSnapshot loads the read-only snapshot the rule engine evaluates against.
func (r *OrderRepo) GetSnapshot(ctx context.Context, orderID int64) (*model.OrderSnapshot, error) {
	var order Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order not found: %d", orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", pkgerrors.ClassifyDBError(err))
	}
	return toSnapshot(&order)
}

// toSnapshot decodes the JSON columns into the snapshot.
func toSnapshot(order *Order) (*model.OrderSnapshot, error) {
	snap := &model.OrderSnapshot{
		ID:        order.ID,
		Number:    order.Number,
		Total:     order.Total,
		Weight:    order.Weight,
		CreatedAt: order.CreatedAt,
	}
	cols := []struct {
		name string
		raw  string
		dest interface{}
	}{
		{"tags", order.Tags, &snap.Tags},
		{"items", order.Items, &snap.Items},
		{"shipping_address", order.ShippingAddress, &snap.ShippingAddress},
		{"customer", order.Customer, &snap.Customer},
		{"tag_history", order.TagHistory, &snap.TagHistory},
	}
	for _, c := range cols {
		if c.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.dest); err != nil {
			return nil, fmt.Errorf("malformed %s on order %d: %w", c.name, order.ID, err)
		}
	}
	return snap, nil
}

// UpdateTags applies tag additions and removals and appends matching tag
// history entries, serialized per order.
func (r *OrderRepo) UpdateTags(ctx context.Context, orderID int64, add, remove []string) error {
	unlock := r.lockOrder(orderID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order not found: %d", orderID)
			}
			return pkgerrors.ClassifyDBError(err)
		}

		var tags []string
		if order.Tags != "" {
			if err := json.Unmarshal([]byte(order.Tags), &tags); err != nil {
				return fmt.Errorf("malformed tags on order %d: %w", orderID, err)
			}
		}
		var history []model.TagHistoryEntry
		if order.TagHistory != "" {
			if err := json.Unmarshal([]byte(order.TagHistory), &history); err != nil {
				return fmt.Errorf("malformed tag history on order %d: %w", orderID, err)
			}
		}

		now := time.Now()
		tagSet := make(map[string]bool, len(tags))
		for _, t := range tags {
			tagSet[t] = true
		}

		for _, t := range remove {
			if tagSet[t] {
				delete(tagSet, t)
				history = append(history, model.TagHistoryEntry{Tag: t, Action: model.TagActionRemoved, At: now})
			}
		}
		for _, t := range add {
			if !tagSet[t] {
				tagSet[t] = true
				history = append(history, model.TagHistoryEntry{Tag: t, Action: model.TagActionAdded, At: now})
			}
		}

		updated := make([]string, 0, len(tagSet))
		for _, t := range tags {
			if tagSet[t] {
				updated = append(updated, t)
				delete(tagSet, t)
			}
		}
		for _, t := range add {
			if tagSet[t] {
				updated = append(updated, t)
				delete(tagSet, t)
			}
		}

		tagsJSON, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		historyJSON, err := json.Marshal(history)
		if err != nil {
			return err
		}

		return tx.Model(&Order{}).Where("id = ?", orderID).Updates(map[string]interface{}{
			"tags":        string(tagsJSON),
			"tag_history": string(historyJSON),
			"updated_at":  now,
		}).Error
	})
}

// ApplyShippingOverride writes the carrier/service/package override columns.
// Empty fields leave the current value in place.
func (r *OrderRepo) ApplyShippingOverride(ctx context.Context, orderID int64, override *model.ShippingOverrideAction) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if override.Carrier != "" {
		updates["carrier"] = override.Carrier
	}
	if override.Service != "" {
		updates["service"] = override.Service
	}
	if override.Package != "" {
		updates["package"] = override.Package
	}

	result := r.db.WithContext(ctx).Model(&Order{}).Where("id = ?", orderID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to apply shipping override: %w", pkgerrors.ClassifyDBError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order not found: %d", orderID)
	}
	return nil
}

// AssignWorkflow writes the workflow and handling priority columns.
func (r *OrderRepo) AssignWorkflow(ctx context.Context, orderID int64, workflow, priority string) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if workflow != "" {
		updates["workflow"] = workflow
	}
	if priority != "" {
		updates["priority"] = priority
	}

	result := r.db.WithContext(ctx).Model(&Order{}).Where("id = ?", orderID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to assign workflow: %w", pkgerrors.ClassifyDBError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order not found: %d", orderID)
	}
	return nil
}
