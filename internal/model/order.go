package model

import "time"

// Address is the shipping destination of an order snapshot.
type Address struct {
	Country     string `json:"country"`
	State       string `json:"state"`
	City        string `json:"city"`
	Zip         string `json:"zip"`
	Residential bool   `json:"residential"`
}

// CustomerProfile carries the aggregate customer figures conditions may
// match against.
type CustomerProfile struct {
	OrderCount int     `json:"order_count"`
	TotalSpent float64 `json:"total_spent"`
}

// OrderItem is a single line of an order snapshot.
type OrderItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Weight   float64 `json:"weight"`
	Price    float64 `json:"price"`
}

// TagHistoryEntry records a tag being added to or removed from an order.
// Action is "added" or "removed".
type TagHistoryEntry struct {
	Tag    string    `json:"tag"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

const (
	TagActionAdded   = "added"
	TagActionRemoved = "removed"
)

// OrderSnapshot is the read-only view of an order the rule engine evaluates
// against. It is supplied by the persistence layer; the engine never mutates
// it in place.
type OrderSnapshot struct {
	ID              int64             `json:"id"`
	Number          string            `json:"number"`
	Tags            []string          `json:"tags"`
	Total           float64           `json:"total"`
	Weight          float64           `json:"weight"`
	Items           []OrderItem       `json:"items"`
	ShippingAddress Address           `json:"shipping_address"`
	Customer        CustomerProfile   `json:"customer"`
	TagHistory      []TagHistoryEntry `json:"tag_history"`
	CreatedAt       time.Time         `json:"created_at"`
}

// HasTag reports whether the snapshot carries the given tag.
func (o *OrderSnapshot) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ItemCount returns the total quantity across all lines.
func (o *OrderSnapshot) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
