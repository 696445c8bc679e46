// Package integrations provides the direct email, calendar and CRM tool endpoints.
package integrations

import (
	apphttp "sales_agent_backend/internal/http"
	"sales_agent_backend/internal/integrations/handler"
	"sales_agent_backend/internal/integrations/service"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/validator"
)

// Module represents the integrations module
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new integrations module with all dependencies wired
func NewModule(mail service.Mailer, cal service.Calendar, crm service.CRM, cfg service.Config, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(mail, cal, crm, cfg, log)
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "integrations"
}

// RegisterRoutes registers the module's routes under /api/v1/integrations
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/integrations"))
}

var _ apphttp.Module = (*Module)(nil)
