// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"time"

	"ShipRelay/internal/conf"
	"ShipRelay/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewErrorClassifier,
	NewRetryPolicyFromConf,
	NewBreakerRegistryFromConf,
	NewLimiterRegistry,
	NewAutoFixStrategyFromConf,
	NewResilientClientFromConf,
	NewConditionEvaluator,
	NewActionExecutorFromConf,
	NewRuleEngineFromConf,
	NewHealthUsecase,
	NewCredentialRefreshTask,
	// Import data layer providers
	data.NewIntegrationRepo,
	data.NewRuleRepo,
	data.NewRuleCounterRepo,
	data.NewOrderRepo,
	data.NewRequestLogWriter,
	data.NewAuditLogger,
	data.NewHTTPTransport,
	data.NewCredentialRefresher,
	data.NewLogNotifier,
	data.NewNoopWebhookService,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(IntegrationRepo), new(*data.IntegrationRepo)),
	wire.Bind(new(RuleRepo), new(*data.RuleRepo)),
	wire.Bind(new(RuleCounterRepo), new(*data.RuleCounterRepo)),
	wire.Bind(new(OrderRepo), new(*data.OrderRepo)),
	wire.Bind(new(RequestLogRepo), new(*data.RequestLogWriter)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	wire.Bind(new(Transport), new(*data.HTTPTransport)),
	wire.Bind(new(CredentialRefresher), new(*data.CredentialRefresher)),
	wire.Bind(new(Notifier), new(*data.LogNotifier)),
	wire.Bind(new(WebhookService), new(*data.NoopWebhookService)),
)

// NewRetryPolicyFromConf builds the retry policy from client configuration.
func NewRetryPolicyFromConf(c *conf.Client, logger log.Logger) *RetryPolicy {
	return NewRetryPolicy(c.MaxRetries, c.BaseDelay.AsDuration(), logger)
}

// NewBreakerRegistryFromConf builds the breaker registry from client
// configuration.
func NewBreakerRegistryFromConf(c *conf.Client, logger log.Logger) *BreakerRegistry {
	return NewBreakerRegistry(c.BreakerThreshold, c.BreakerTimeout.AsDuration(), logger)
}

// NewAutoFixStrategyFromConf builds the auto-fix strategy from client
// configuration.
func NewAutoFixStrategyFromConf(refresher CredentialRefresher, c *conf.Client, logger log.Logger) *AutoFixStrategy {
	var wait time.Duration
	if c.RateLimitWait != nil {
		wait = c.RateLimitWait.AsDuration()
	}
	return NewAutoFixStrategy(refresher, wait, logger)
}

// NewResilientClientFromConf wires the resilient client with timeouts and
// ceilings from client configuration.
func NewResilientClientFromConf(
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
	c *conf.Client,
	logger log.Logger,
) *ResilientClient {
	var timeout time.Duration
	if c.RequestTimeout != nil {
		timeout = c.RequestTimeout.AsDuration()
	}
	return NewResilientClient(repo, requestLog, transport, classifier, retry,
		breakers, limiters, autofix, webhook, audit, timeout, c.ErrorCeiling, logger)
}

// NewActionExecutorFromConf builds the action executor with the exclusive tag
// collections from engine configuration.
func NewActionExecutorFromConf(orders OrderRepo, client *ResilientClient, notifier Notifier, webhook WebhookService, e *conf.Engine, logger log.Logger) *ActionExecutor {
	return NewActionExecutor(orders, client, notifier, webhook, e.ExclusiveTagSets, logger)
}

// NewRuleEngineFromConf builds the rule engine with the parsed-rule cache
// size from engine configuration.
func NewRuleEngineFromConf(
	rules RuleRepo,
	counters RuleCounterRepo,
	orders OrderRepo,
	evaluator *ConditionEvaluator,
	executor *ActionExecutor,
	audit AuditLogger,
	e *conf.Engine,
	logger log.Logger,
) (*RuleEngine, error) {
	return NewRuleEngine(rules, counters, orders, evaluator, executor, audit, e.RuleCacheSize, logger)
}
