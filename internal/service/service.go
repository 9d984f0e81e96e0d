// Package service exposes the HTTP admin and monitoring surface. Services
// translate between transport payloads and the biz layer; no domain logic
// lives here.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewIntegrationService, NewRuleService)
