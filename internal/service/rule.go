package service

import (
	"context"
	"encoding/json"
	"time"

	"ShipRelay/internal/biz"
	"ShipRelay/internal/data"
	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RuleService serves the automation rule admin endpoints and the manual
// event injection endpoint.
type RuleService struct {
	rules  biz.RuleRepo
	engine *biz.RuleEngine
	logger *log.Helper
}

// NewRuleService creates a new RuleService instance.
func NewRuleService(rules biz.RuleRepo, engine *biz.RuleEngine, logger log.Logger) *RuleService {
	return &RuleService{
		rules:  rules,
		engine: engine,
		logger: log.NewHelper(logger),
	}
}

// RuleInfo is the wire shape for one automation rule.
type RuleInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Event       string `json:"event"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`

	Conditions json.RawMessage `json:"conditions,omitempty"`
	Actions    json.RawMessage `json:"actions,omitempty"`

	MaxExecutions   int64 `json:"max_executions"`
	MaxPerDay       int64 `json:"max_per_day"`
	MaxPerOrder     int64 `json:"max_per_order"`
	CooldownMinutes int   `json:"cooldown_minutes"`

	TotalExecutions      int64      `json:"total_executions"`
	SuccessfulExecutions int64      `json:"successful_executions"`
	FailedExecutions     int64      `json:"failed_executions"`
	AvgDurationMs        int64      `json:"avg_duration_ms"`
	LastExecuted         *time.Time `json:"last_executed,omitempty"`
	LastSuccess          *time.Time `json:"last_success,omitempty"`
	LastError            string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRuleInfo(in *data.AutomationRule) *RuleInfo {
	return &RuleInfo{
		ID:                   in.ID,
		Name:                 in.Name,
		Description:          in.Description,
		Event:                in.Event,
		Priority:             in.Priority,
		Enabled:              in.Enabled,
		Conditions:           json.RawMessage(in.ConditionsJSON),
		Actions:              json.RawMessage(in.ActionsJSON),
		MaxExecutions:        in.MaxExecutions,
		MaxPerDay:            in.MaxPerDay,
		MaxPerOrder:          in.MaxPerOrder,
		CooldownMinutes:      in.CooldownMinutes,
		TotalExecutions:      in.TotalExecutions,
		SuccessfulExecutions: in.SuccessfulExecutions,
		FailedExecutions:     in.FailedExecutions,
		AvgDurationMs:        in.AvgDurationMs,
		LastExecuted:         in.LastExecuted,
		LastSuccess:          in.LastSuccess,
		LastError:            in.LastError,
		CreatedAt:            in.CreatedAt,
		UpdatedAt:            in.UpdatedAt,
	}
}

// ExecutionInfo is one entry from a rule's execution history.
type ExecutionInfo struct {
	ID         int64     `json:"id"`
	RuleID     int64     `json:"rule_id"`
	OrderID    int64     `json:"order_id"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Actions    []string  `json:"actions,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

func toExecutionInfo(in *data.RuleExecution) *ExecutionInfo {
	info := &ExecutionInfo{
		ID:         in.ID,
		RuleID:     in.RuleID,
		OrderID:    in.OrderID,
		Success:    in.Success,
		DurationMs: in.DurationMs,
		Error:      in.Error,
		ExecutedAt: in.ExecutedAt,
	}
	if in.Actions != "" {
		// Malformed history rows degrade to an empty action list.
		_ = json.Unmarshal([]byte(in.Actions), &info.Actions)
	}
	return info
}

// ListRules returns all automation rules.
func (s *RuleService) ListRules(ctx context.Context) ([]*RuleInfo, error) {
	rows, err := s.rules.ListRules(ctx)
	if err != nil {
		s.logger.Errorw("failed to list rules", "error", err)
		return nil, errors.InternalServer("LIST_FAILED", "failed to list rules")
	}

	out := make([]*RuleInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRuleInfo(row))
	}
	return out, nil
}

// GetRule returns one rule by ID.
func (s *RuleService) GetRule(ctx context.Context, id int64) (*RuleInfo, error) {
	row, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, errors.NotFound("RULE_NOT_FOUND", "rule not found")
	}
	return toRuleInfo(row), nil
}

// SetEnabled toggles a rule on or off.
func (s *RuleService) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := s.rules.SetEnabled(ctx, id, enabled); err != nil {
		s.logger.Errorw("failed to toggle rule", "rule_id", id, "enabled", enabled, "error", err)
		return errors.NotFound("RULE_NOT_FOUND", "rule not found")
	}
	s.logger.Infow("rule toggled", "rule_id", id, "enabled", enabled)
	return nil
}

// History returns the most recent executions of a rule, newest first,
// capped by the retained history window.
func (s *RuleService) History(ctx context.Context, id int64) ([]*ExecutionInfo, error) {
	rows, err := s.rules.ListHistory(ctx, id, model.MaxExecutionHistory)
	if err != nil {
		s.logger.Errorw("failed to list rule history", "rule_id", id, "error", err)
		return nil, errors.InternalServer("HISTORY_FAILED", "failed to list rule history")
	}

	out := make([]*ExecutionInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, toExecutionInfo(row))
	}
	return out, nil
}

// InjectEventRequest is a manual event submission, normally emitted by the
// order pipeline itself.
type InjectEventRequest struct {
	Event   string `json:"event"`
	OrderID int64  `json:"order_id"`
}

// InjectEventReply carries the per-rule outcomes of one event dispatch.
type InjectEventReply struct {
	Event    string            `json:"event"`
	OrderID  int64             `json:"order_id"`
	Outcomes []biz.RuleOutcome `json:"outcomes"`
}

// InjectEvent runs the rule engine for an order event.
func (s *RuleService) InjectEvent(ctx context.Context, req *InjectEventRequest) (*InjectEventReply, error) {
	if !model.ValidEvent(req.Event) {
		return nil, errors.BadRequest("INVALID_EVENT", "unknown event type")
	}
	if req.OrderID <= 0 {
		return nil, errors.BadRequest("INVALID_ORDER", "order_id must be a positive integer")
	}

	outcomes, err := s.engine.HandleEvent(ctx, req.Event, req.OrderID)
	if err != nil {
		s.logger.Errorw("event dispatch failed", "event", req.Event, "order_id", req.OrderID, "error", err)
		return nil, errors.InternalServer("DISPATCH_FAILED", "event dispatch failed")
	}

	return &InjectEventReply{
		Event:    req.Event,
		OrderID:  req.OrderID,
		Outcomes: outcomes,
	}, nil
}

type toggleReply struct {
	Success bool `json:"success"`
}

// RegisterRoutes mounts the rule endpoints under /v1.
func (s *RuleService) RegisterRoutes(srv *http.Server) {
	r := srv.Route("/v1")

	r.GET("/rules", func(ctx http.Context) error {
		out, err := s.ListRules(ctx)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.GET("/rules/{id}", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		out, err := s.GetRule(ctx, id)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/rules/{id}/enable", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		if err := s.SetEnabled(ctx, id, true); err != nil {
			return err
		}
		return ctx.Result(200, &toggleReply{Success: true})
	})

	r.POST("/rules/{id}/disable", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		if err := s.SetEnabled(ctx, id, false); err != nil {
			return err
		}
		return ctx.Result(200, &toggleReply{Success: true})
	})

	r.GET("/rules/{id}/history", func(ctx http.Context) error {
		id, err := pathID(ctx)
		if err != nil {
			return err
		}
		out, err := s.History(ctx, id)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})

	r.POST("/events", func(ctx http.Context) error {
		var req InjectEventRequest
		if err := ctx.Bind(&req); err != nil {
			return errors.BadRequest("INVALID_BODY", "invalid request body")
		}
		out, err := s.InjectEvent(ctx, &req)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	})
}
