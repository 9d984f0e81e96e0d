package model

import "time"

// BreakerState is the three-state circuit breaker position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Operation categories a breaker is keyed by, alongside the integration ID.
const (
	CategoryOrders    = "orders"
	CategoryShipments = "shipments"
	CategoryProducts  = "products"
	CategoryWebhooks  = "webhooks"
)

// BreakerSnapshot is the externally visible state of one breaker, exposed by
// the health surface.
type BreakerSnapshot struct {
	IntegrationID   int64        `json:"integration_id"`
	Category        string       `json:"category"`
	State           BreakerState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitzero"`
	// RetryIn is how long until the next probe is allowed while OPEN.
	RetryIn time.Duration `json:"retry_in,omitempty"`
}

// IntegrationHealth is the per-integration health snapshot consumed by the
// monitoring surface.
type IntegrationHealth struct {
	IntegrationID     int64             `json:"integration_id"`
	Name              string            `json:"name"`
	Connected         bool              `json:"connected"`
	SyncEnabled       bool              `json:"sync_enabled"`
	ConsecutiveErrors int               `json:"consecutive_errors"`
	SuccessRate       float64           `json:"success_rate"`
	AutoFixRate       float64           `json:"auto_fix_rate"`
	AvgResponseMs     int64             `json:"avg_response_ms"`
	LastError         string            `json:"last_error,omitempty"`
	Breakers          []BreakerSnapshot `json:"breakers"`
}
