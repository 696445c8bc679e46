// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"context"

	"sales_agent_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Principal identifies the API caller: the voice agent runtime or an operator tool.
type Principal interface {
	// Subject returns the token subject, or "api-key" for the static key.
	Subject() string
	// Method returns how the caller authenticated.
	Method() string
	// IsAuthenticated returns true if the caller passed APIKeyAuth.
	IsAuthenticated() bool
}

type principal struct {
	subject       string
	method        string
	authenticated bool
}

func (p *principal) Subject() string       { return p.subject }
func (p *principal) Method() string        { return p.method }
func (p *principal) IsAuthenticated() bool { return p.authenticated }

// GetPrincipal extracts the Principal from a Gin context.
func GetPrincipal(c *gin.Context) Principal {
	subject, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return &principal{}
	}
	method, _ := c.Get(ContextAuthMethodKey)

	s, _ := subject.(string)
	m, _ := method.(string)
	return &principal{subject: s, method: m, authenticated: true}
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, logger.RequestIDKey, id)
}
