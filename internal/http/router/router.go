package router

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	apphttp "sales_agent_backend/internal/http"
	"sales_agent_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	apiRatePerSecond = 20
	apiRateBurst     = 40
	healthTimeout    = 2 * time.Second
)

// New builds the engine: global middleware, /health, /info, then every
// module under /api/v1 (authenticated) or /webhooks.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(apiRatePerSecond), apiRateBurst, app.Logger)
	auth := httpkit.APIKeyAuth(app.Config, app.Logger)

	engine.GET("/health", health(app.Health))
	engine.GET("/info", info(engine, app.Info))

	v1 := engine.Group("/api/v1")
	v1.Use(limiter.RateLimit())
	protected := v1.Group("")
	protected.Use(auth)

	webhooks := engine.Group("/webhooks")
	webhooks.Use(limiter.RateLimit())

	rc := &apphttp.RouterContext{
		Engine:         engine,
		V1:             v1,
		Protected:      protected,
		Webhooks:       webhooks,
		AuthMiddleware: auth,
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Debug("module routes registered", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key", httpkit.HeaderRequestID},
		ExposeHeaders:    []string{httpkit.HeaderRequestID},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}

func health(checker apphttp.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := checker.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type infoResponse struct {
	apphttp.ServiceInfo
	Endpoints []string `json:"endpoints"`
}

// info lists the API and webhook routes so agent runtimes can discover tools.
func info(engine *gin.Engine, svc apphttp.ServiceInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		var endpoints []string
		for _, r := range engine.Routes() {
			if strings.HasPrefix(r.Path, "/api/") || strings.HasPrefix(r.Path, "/webhooks/") {
				endpoints = append(endpoints, r.Method+" "+r.Path)
			}
		}
		sort.Strings(endpoints)
		httpkit.OK(c, infoResponse{ServiceInfo: svc, Endpoints: endpoints})
	}
}
