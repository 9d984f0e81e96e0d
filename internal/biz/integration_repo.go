package biz

import (
	"context"
	"time"

	"ShipRelay/internal/data"
)

// IntegrationRepo defines the integration repository interface.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementation is in data layer (data.IntegrationRepo).
type IntegrationRepo interface {
	GetIntegration(ctx context.Context, id int64) (*data.Integration, error)
	ListIntegrations(ctx context.Context) ([]*data.Integration, error)
	// RecordCallResult folds one call outcome into the integration's stats
	// and status columns and returns the updated row.
	RecordCallResult(ctx context.Context, id int64, outcome data.CallOutcome) (*data.Integration, error)
	SetSyncEnabled(ctx context.Context, id int64, enabled bool) error
	UpdateCredentials(ctx context.Context, id int64, encrypted string, expiresAt *time.Time) error
	ListExpiringCredentials(ctx context.Context, within time.Duration) ([]*data.Integration, error)
}

// RequestLogRepo records one entry per resilient client call, success or
// exhausted failure. Implementations may write asynchronously.
type RequestLogRepo interface {
	Append(ctx context.Context, entry *data.RequestLog)
}

// CredentialRefresher is the external collaborator that exchanges an
// integration's refresh credential for a new one. Token acquisition flows
// are out of scope; ShipRelay only triggers the refresh.
type CredentialRefresher interface {
	Refresh(ctx context.Context, integration *data.Integration) error
}
