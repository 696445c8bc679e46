// Package calls provides the inbound sales call module.
package calls

import (
	"sales_agent_backend/internal/calls/handler"
	"sales_agent_backend/internal/calls/service"
	apphttp "sales_agent_backend/internal/http"
	"sales_agent_backend/platform/validator"
)

// Module represents the calls domain module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new calls module with all dependencies wired
func NewModule(deps service.Deps, cfg service.Config, val *validator.Validator) *Module {
	svc := service.New(deps, cfg)
	h := handler.New(svc, val, deps.Log)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "calls"
}

// RegisterRoutes registers the session routes under /api/v1/calls and the
// inbound SMS callback under /webhooks.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/calls"))
	m.handler.RegisterWebhooks(ctx.Webhooks)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
