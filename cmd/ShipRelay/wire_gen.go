// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"ShipRelay/internal/biz"
	"ShipRelay/internal/conf"
	"ShipRelay/internal/data"
	"ShipRelay/internal/server"
	"ShipRelay/internal/service"
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
)

import (
	_ "go.uber.org/automaxprocs"
)

// Injectors from wire.go:

// wireApp init kratos application.
func wireApp(confServer *conf.Server, confData *conf.Data, auth *conf.Auth, client *conf.Client, engine *conf.Engine, logger log.Logger) (*kratos.App, func(), error) {
	redisClient, cleanup, err := data.NewRedisClient(confData, logger)
	if err != nil {
		return nil, nil, err
	}
	cacheClient := data.NewCacheClient(redisClient)
	dataData, cleanup2, err := data.NewData(confData, logger, redisClient, cacheClient)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	db, cleanup3, err := data.NewMySQLClient(confData, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	integrationRepo := data.NewIntegrationRepo(dataData, db, logger)
	breakerRegistry := biz.NewBreakerRegistryFromConf(client, logger)
	healthUsecase := biz.NewHealthUsecase(integrationRepo, breakerRegistry, logger)
	auditLoggerImpl := data.NewAuditLogger(db, logger)
	integrationService := service.NewIntegrationService(integrationRepo, healthUsecase, breakerRegistry, auditLoggerImpl, logger)
	ruleRepo := data.NewRuleRepo(dataData, db, logger)
	ruleCounterRepo := data.NewRuleCounterRepo(dataData, logger)
	orderRepo := data.NewOrderRepo(db, logger)
	conditionEvaluator := biz.NewConditionEvaluator()
	requestLogWriter := data.NewRequestLogWriter(db, logger)
	httpTransport, err := data.NewHTTPTransport(integrationRepo, auth, client, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	errorClassifier := biz.NewErrorClassifier()
	retryPolicy := biz.NewRetryPolicyFromConf(client, logger)
	limiterRegistry := biz.NewLimiterRegistry(logger)
	credentialRefresher, err := data.NewCredentialRefresher(integrationRepo, auth, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	autoFixStrategy := biz.NewAutoFixStrategyFromConf(credentialRefresher, client, logger)
	noopWebhookService := data.NewNoopWebhookService(logger)
	resilientClient := biz.NewResilientClientFromConf(integrationRepo, requestLogWriter, httpTransport, errorClassifier, retryPolicy, breakerRegistry, limiterRegistry, autoFixStrategy, noopWebhookService, auditLoggerImpl, client, logger)
	logNotifier := data.NewLogNotifier(logger)
	actionExecutor := biz.NewActionExecutorFromConf(orderRepo, resilientClient, logNotifier, noopWebhookService, engine, logger)
	ruleEngine, err := biz.NewRuleEngineFromConf(ruleRepo, ruleCounterRepo, orderRepo, conditionEvaluator, actionExecutor, auditLoggerImpl, engine, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	ruleService := service.NewRuleService(ruleRepo, ruleEngine, logger)
	httpServer := server.NewHTTPServer(confServer, auth, integrationService, ruleService, logger)
	credentialRefreshTask := biz.NewCredentialRefreshTask(integrationRepo, credentialRefresher, logger)
	app := newApp(logger, httpServer, credentialRefreshTask, healthUsecase)
	return app, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
