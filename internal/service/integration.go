package service

import (
	"context"
	"strconv"
	"time"

	"ShipRelay/internal/biz"
	"ShipRelay/internal/data"
	"ShipRelay/internal/model"
	pkglog "ShipRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// IntegrationService serves the integration monitoring and admin endpoints.
type IntegrationService struct {
	integrations biz.IntegrationRepo
	health       *biz.HealthUsecase
	breakers     *biz.BreakerRegistry
	audit        biz.AuditLogger
	logger       *log.Helper
}

// NewIntegrationService creates a new IntegrationService instance.
func NewIntegrationService(
	integrations biz.IntegrationRepo,
	health *biz.HealthUsecase,
	breakers *biz.BreakerRegistry,
	audit biz.AuditLogger,
	logger log.Logger,
) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		health:       health,
		breakers:     breakers,
		audit:        audit,
		logger:       log.NewHelper(logger),
	}
}

// IntegrationInfo is the wire shape for one integration. Credentials never
// leave the data layer.
type IntegrationInfo struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Platform           string     `json:"platform"`
	BaseURL            string     `json:"base_url"`
	RequestsPerMinute  int        `json:"requests_per_minute"`
	SyncEnabled        bool       `json:"sync_enabled"`
	Connected          bool       `json:"connected"`
	ConsecutiveErrors  int        `json:"consecutive_errors"`
	LastError          string     `json:"last_error,omitempty"`
	LastErrorAt        *time.Time `json:"last_error_at,omitempty"`
	TotalRequests      int64      `json:"total_requests"`
	SuccessfulRequests int64      `json:"successful_requests"`
	FailedRequests     int64      `json:"failed_requests"`
	AutoFixedRequests  int64      `json:"auto_fixed_requests"`
	AvgResponseMs      int64      `json:"avg_response_ms"`
	DataTransferred    int64      `json:"data_transferred"`
	TokenExpiresAt     *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toIntegrationInfo(in *data.Integration) *IntegrationInfo {
	info := &IntegrationInfo{
		ID:                 in.ID,
		Name:               in.Name,
		Description:        in.Description,
		Platform:           string(in.Platform),
		BaseURL:            in.BaseURL,
		RequestsPerMinute:  in.RequestsPerMinute,
		SyncEnabled:        in.SyncEnabled,
		Connected:          in.Connected,
		ConsecutiveErrors:  in.ConsecutiveErrors,
		LastErrorAt:        in.LastErrorAt,
		TotalRequests:      in.TotalRequests,
		SuccessfulRequests: in.SuccessfulRequests,
		FailedRequests:     in.FailedRequests,
		AutoFixedRequests:  in.AutoFixedRequests,
		AvgResponseMs:      in.AvgResponseMs,
		DataTransferred:    in.DataTransferred,
		TokenExpiresAt:     in.TokenExpiresAt,
		CreatedAt:          in.CreatedAt,
		UpdatedAt:          in.UpdatedAt,
	}
	if in.LastError != nil {
		info.LastError = *in.LastError
	}
	return info
}

// ListIntegrations returns all integrations with their stats.
func (s *IntegrationService) ListIntegrations(ctx context.Context) ([]*IntegrationInfo, error) {
	rows, err := s.integrations.ListIntegrations(ctx)
	if err != nil {
		s.logger.Errorw("failed to list integrations", "error", err)
		return nil, errors.InternalServer("LIST_FAILED", "failed to list integrations")
	}

	out := make([]*IntegrationInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, toIntegrationInfo(row))
	}
	return out, nil
}

// GetIntegration returns one integration by ID.
func (s *IntegrationService) GetIntegration(ctx context.Context, id int64) (*IntegrationInfo, error) {
	row, err := s.integrations.GetIntegration(ctx, id)
	if err != nil {
		return nil, errors.NotFound("INTEGRATION_NOT_FOUND", "integration not found")
	}
	return toIntegrationInfo(row), nil
}

// Health returns the health snapshot for one integration, including its
// circuit breaker states.
func (s *IntegrationService) Health(ctx context.Context, id int64) (*model.IntegrationHealth, error) {
	h, err := s.health.Health(ctx, id)
	if err != nil {
		return nil, errors.NotFound("INTEGRATION_NOT_FOUND", "integration not found")
	}
	return h, nil
}

// HealthAll returns health snapshots for every integration.
func (s *IntegrationService) HealthAll(ctx context.Context) ([]*model.IntegrationHealth, error) {
	out, err := s.health.HealthAll(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect health snapshots", "error", err)
		return nil, errors.InternalServer("HEALTH_FAILED", "failed to collect health snapshots")
	}
	return out, nil
}

// EnableSync re-enables sync for an integration that was disabled by the
// error ceiling. The operator is taken from the request context for the
// audit trail.
func (s *IntegrationService) EnableSync(ctx context.Context, id int64) error {
	if _, err := s.integrations.GetIntegration(ctx, id); err != nil {
		return errors.NotFound("INTEGRATION_NOT_FOUND", "integration not found")
	}

	if err := s.integrations.SetSyncEnabled(ctx, id, true); err != nil {
		s.logger.Errorw("failed to re-enable sync", "integration_id", id, "error", err)
		return errors.InternalServer("ENABLE_SYNC_FAILED", "failed to re-enable sync")
	}

	operator := pkglog.GetOperator(ctx)
	s.audit.LogSyncReenabled(ctx, id, operator)
	s.logger.Infow("sync re-enabled", "integration_id", id, "operator", operator)
	return nil
}

// ResetBreaker force-closes the breaker for one (integration, category)
// pair after a manual fix.
func (s *IntegrationService) ResetBreaker(ctx context.Context, id int64, category string) error {
	if !s.breakers.Reset(id, category) {
		return errors.NotFound("BREAKER_NOT_FOUND", "no breaker for this integration and category")
	}
	s.logger.Infow("breaker reset", "integration_id", id, "category", category,
		"operator", pkglog.GetOperator(ctx))
	return nil
}

type enableSyncReply struct {
	Success bool `json:"success"`
}

type resetBreakerRequest struct {
	Category string `json:"category"`
}

// RegisterRoutes mounts the integration endpoints under /v1.
func (s *IntegrationService) RegisterRoutes(srv *http.Server) {
	r := srv.Route("/v1")

	r.GET("/integrations", func(ctx http.Context) error {
		out, err := s.ListIntegrations(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/integrations/health", func(ctx http.Context) error {
		out, err := s.HealthAll(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/integrations/{id}", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		out, err := s.GetIntegration(ctx, id)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/integrations/{id}/health", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		out, err := s.Health(ctx, id)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/integrations/{id}/sync/enable", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		if err := s.EnableSync(ctx, id); err != nil {
			return err
		}
		return ctx.Result(200, &enableSyncReply{Success: true})
	})

	r.POST("/integrations/{id}/breakers/reset", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		var req resetBreakerRequest
		if err := ctx.Bind(&req); err != nil {
			return errors.BadRequest("INVALID_BODY", "invalid request body")
		}
		if req.Category == "" {
			return errors.BadRequest("MISSING_CATEGORY", "category is required")
		}
		if err := s.ResetBreaker(ctx, id, req.Category); err != nil {
			return err
		}
		return ctx.Result(200, &enableSyncReply{Success: true})
	})
}

// pathID parses the {id} route variable.
func pathID(ctx http.Context) (int64, error) {
	raw := ctx.Vars().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("INVALID_ID", "id must be a positive integer")
	}
	return id, nil
}
