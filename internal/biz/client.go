package biz

import (
	"context"
	"fmt"
	"time"

	"ShipRelay/internal/data"
	"ShipRelay/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CallResult is the outcome of one resilient client call.
type CallResult struct {
	Response *model.Response
	// AutoFixed is set when the call only succeeded after a successful
	// local remediation (credential refresh). Transient recoveries are
	// recorded for observability, not surfaced as errors.
	AutoFixed bool
	Attempts  int
	Latency   time.Duration
}

// ResilientClient orchestrates a single external call through the full
// resilience stack: rate-limiter admission, circuit breaker, retry pipeline
// with classification and auto-fix. Whatever the outcome, it appends a
// request-log entry and folds the result into the integration's stats and
// status, disabling autonomous sync once consecutive errors cross the hard
// ceiling.
type ResilientClient struct {
	repo       IntegrationRepo
	requestLog RequestLogRepo
	transport  Transport
	classifier *ErrorClassifier
	retry      *RetryPolicy
	breakers   *BreakerRegistry
	limiters   *LimiterRegistry
	autofix    *AutoFixStrategy
	webhook    WebhookService
	audit      AuditLogger

	requestTimeout time.Duration
	errorCeiling   int
	logger         *log.Helper
}

// NewResilientClient wires the resilience stack together. requestTimeout
// bounds each transport attempt; errorCeiling is the consecutive-error count
// beyond which an integration's sync is disabled.
func NewResilientClient(
	repo IntegrationRepo,
	requestLog RequestLogRepo,
	transport Transport,
	classifier *ErrorClassifier,
	retry *RetryPolicy,
	breakers *BreakerRegistry,
	limiters *LimiterRegistry,
	autofix *AutoFixStrategy,
	webhook WebhookService,
	audit AuditLogger,
	requestTimeout time.Duration,
	errorCeiling int,
	logger log.Logger,
) *ResilientClient {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	if errorCeiling <= 0 {
		errorCeiling = 10
	}
	return &ResilientClient{
		repo:           repo,
		requestLog:     requestLog,
		transport:      transport,
		classifier:     classifier,
		retry:          retry,
		breakers:       breakers,
		limiters:       limiters,
		autofix:        autofix,
		webhook:        webhook,
		audit:          audit,
		requestTimeout: requestTimeout,
		errorCeiling:   errorCeiling,
		logger:         log.NewHelper(logger),
	}
}

// Execute performs one call against the integration's operation category.
// It returns the final response or the last classified error once the stack
// is exhausted.
func (c *ResilientClient) Execute(ctx context.Context, integrationID int64, category string, req *model.Request) (*CallResult, error) {
	integration, err := c.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !integration.SyncEnabled {
		return nil, fmt.Errorf("integration %d (%s) has sync disabled", integration.ID, integration.Name)
	}

	// Admission is FIFO per integration; blocks until a window slot frees up.
	limiter := c.limiters.Get(integration.ID, integration.RequestsPerMinute)
	if err := limiter.Admit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit admission aborted: %w", err)
	}

	start := time.Now()
	result := &CallResult{}
	fix := &fixState{}

	breaker := c.breakers.Get(integration.ID, category)
	apiErr, transition := breaker.Execute(ctx, integration.ID, category, func(ctx context.Context) *model.APIError {
		return c.retry.Run(ctx, func(ctx context.Context, attempt int) *model.APIError {
			result.Attempts++
			return c.attempt(ctx, integration, req, result, fix)
		})
	})
	result.Latency = time.Since(start)

	c.handleTransition(ctx, integration, category, breaker, transition)

	if apiErr != nil && apiErr.Kind == model.KindCircuitOpen {
		// Local rejection: no transport call was attempted, so integration
		// stats stay untouched. The skip is still visible in the request log.
		c.appendLog(ctx, integration.ID, req, 0, result, apiErr)
		return nil, apiErr
	}

	outcome := data.CallOutcome{
		Success:   apiErr == nil,
		LatencyMs: result.Latency.Milliseconds(),
		AutoFixed: result.AutoFixed,
	}
	status := 0
	if result.Response != nil {
		status = result.Response.StatusCode
		outcome.Bytes = int64(len(result.Response.Body))
	}
	if apiErr != nil {
		outcome.ErrorKind = string(apiErr.Kind)
		outcome.ErrorMsg = apiErr.Message
		status = apiErr.StatusCode
	}

	c.appendLog(ctx, integration.ID, req, status, result, apiErr)

	updated, repoErr := c.repo.RecordCallResult(ctx, integration.ID, outcome)
	if repoErr != nil {
		c.logger.Errorw("failed to record call result",
			"integration_id", integration.ID,
			"error", repoErr)
	} else if !outcome.Success && updated.ConsecutiveErrors > c.errorCeiling && updated.SyncEnabled {
		c.disableSync(ctx, updated)
	}

	if apiErr != nil {
		return nil, apiErr
	}
	return result, nil
}

// attempt performs one transport exchange, classifies any failure, and runs
// the auto-fix path. A successful credential refresh retries the original
// call exactly once within the same attempt and flags the result autoFixed.
func (c *ResilientClient) attempt(ctx context.Context, integration *data.Integration, req *model.Request, result *CallResult, fix *fixState) *model.APIError {
	apiErr := c.doOnce(ctx, integration.ID, req, result)
	if apiErr == nil {
		if fix.refreshSucceeded {
			result.AutoFixed = true
		}
		return nil
	}

	retryNow, fixed := c.autofix.TryFix(ctx, integration, apiErr, fix)
	if !retryNow {
		return apiErr
	}

	if fixed {
		// Credentials changed on the integration row; reload before retrying.
		if refreshed, err := c.repo.GetIntegration(ctx, integration.ID); err == nil {
			*integration = *refreshed
		}
		result.Attempts++
		if apiErr = c.doOnce(ctx, integration.ID, req, result); apiErr == nil {
			result.AutoFixed = true
			return nil
		}
		return apiErr
	}

	// Rate-limit cooldown already served inside TryFix; hand the retryable
	// failure back to the retry pipeline.
	return apiErr
}

// doOnce performs a single transport exchange under the per-request timeout.
func (c *ResilientClient) doOnce(ctx context.Context, integrationID int64, req *model.Request, result *CallResult) *model.APIError {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.transport.Do(callCtx, integrationID, req)
	result.Response = resp

	if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	status := 0
	retryAfter := ""
	if resp != nil {
		status = resp.StatusCode
		retryAfter = resp.RetryAfterHeader()
	}
	if err == nil {
		err = fmt.Errorf("integration returned status %d", status)
	}
	return c.classifier.Classify(status, retryAfter, err)
}

// handleTransition publishes breaker transitions to the webhook service and
// audit trail.
func (c *ResilientClient) handleTransition(ctx context.Context, integration *data.Integration, category string, breaker *CircuitBreaker, transition BreakerTransition) {
	switch transition {
	case TransitionOpened:
		snap := breaker.Snapshot(integration.ID, category)
		c.logger.Warnw("circuit opened",
			"integration_id", integration.ID,
			"integration", integration.Name,
			"category", category,
			"failure_count", snap.FailureCount)
		c.audit.LogCircuitOpened(ctx, integration.ID, category, snap.FailureCount, snap.LastFailureTime)
		if err := c.webhook.NotifyCircuitOpened(ctx, &model.CircuitOpenedEvent{
			IntegrationID:   integration.ID,
			IntegrationName: integration.Name,
			Category:        category,
			FailureCount:    snap.FailureCount,
			OpenedAt:        snap.LastFailureTime,
		}); err != nil {
			c.logger.Warnw("circuit-opened webhook failed", "error", err)
		}

	case TransitionRecovered:
		openFor := breaker.OpenFor()
		c.logger.Infow("circuit recovered",
			"integration_id", integration.ID,
			"integration", integration.Name,
			"category", category,
			"open_for", openFor)
		c.audit.LogCircuitRecovered(ctx, integration.ID, category, openFor)
		if err := c.webhook.NotifyCircuitRecovered(ctx, &model.CircuitRecoveredEvent{
			IntegrationID:   integration.ID,
			IntegrationName: integration.Name,
			Category:        category,
			OpenFor:         openFor,
		}); err != nil {
			c.logger.Warnw("circuit-recovered webhook failed", "error", err)
		}
	}
}

// disableSync switches off autonomous sync after the error ceiling is
// crossed. This escalation is independent of the circuit breaker.
func (c *ResilientClient) disableSync(ctx context.Context, integration *data.Integration) {
	if err := c.repo.SetSyncEnabled(ctx, integration.ID, false); err != nil {
		c.logger.Errorw("failed to disable sync",
			"integration_id", integration.ID,
			"error", err)
		return
	}

	lastErr := ""
	if integration.LastError != nil {
		lastErr = *integration.LastError
	}
	c.logger.Errorw("integration sync disabled after repeated failures",
		"integration_id", integration.ID,
		"integration", integration.Name,
		"consecutive_errors", integration.ConsecutiveErrors)

	c.audit.LogIntegrationDisabled(ctx, integration.ID, integration.ConsecutiveErrors, lastErr)
	if err := c.webhook.NotifyIntegrationDisabled(ctx, &model.IntegrationDisabledEvent{
		IntegrationID:     integration.ID,
		IntegrationName:   integration.Name,
		ConsecutiveErrors: integration.ConsecutiveErrors,
		LastError:         lastErr,
		DisabledAt:        time.Now(),
	}); err != nil {
		c.logger.Warnw("integration-disabled webhook failed", "error", err)
	}
}

// appendLog writes the request-log entry for one call.
func (c *ResilientClient) appendLog(ctx context.Context, integrationID int64, req *model.Request, status int, result *CallResult, apiErr *model.APIError) {
	entry := &data.RequestLog{
		IntegrationID: integrationID,
		Endpoint:      req.Endpoint,
		Method:        req.Method,
		Status:        status,
		LatencyMs:     result.Latency.Milliseconds(),
		Attempts:      result.Attempts,
		AutoFixed:     result.AutoFixed,
	}
	if apiErr != nil {
		entry.ErrorKind = string(apiErr.Kind)
		entry.ErrorMsg = apiErr.Message
	}
	c.requestLog.Append(ctx, entry)
}
