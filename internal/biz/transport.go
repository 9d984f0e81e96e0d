package biz

import (
	"context"

	"ShipRelay/internal/model"
)

// Transport performs the actual HTTP exchange against an integration. It is
// an external collaborator: implementations own connection pooling, proxies
// and per-request timeouts. A non-2xx status is returned as a response with
// a nil error; the classifier decides what it means.
type Transport interface {
	Do(ctx context.Context, integrationID int64, req *model.Request) (*model.Response, error)
}
