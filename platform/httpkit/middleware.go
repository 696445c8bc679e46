// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// ContextPrincipalKey is the gin context key for the authenticated caller.
	ContextPrincipalKey = "principal"
	// ContextAuthMethodKey is the gin context key for how the caller authenticated.
	ContextAuthMethodKey = "authMethod"
	// HeaderRequestID carries the request correlation id.
	HeaderRequestID = "X-Request-ID"

	authMethodAPIKey = "api_key"
	authMethodJWT    = "jwt"

	errMissingToken = "missing token"
	errInvalidToken = "invalid token"
)

// RequestID assigns a request id to every request and propagates it to the
// request context so logger.WithContext picks it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(contextWithRequestID(ctx, id))
		c.Next()
	}
}

// RequestLogger logs HTTP requests with timing.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		log.WithContext(c.Request.Context()).HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), clientIP)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// IPRateLimiter manages per-IP rate limiters.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	limiter, _ := i.limiters.LoadOrStore(ip, rate.NewLimiter(i.rate, i.burst))
	return limiter.(*rate.Limiter)
}

// RateLimit returns a middleware that rate limits by IP.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := i.getLimiter(ip)

		if !limiter.Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// APIKeyAuth accepts either the static API key or an HS256 service token
// signed with the JWT secret, both as a Bearer credential.
func APIKeyAuth(cfg config.AuthConfig, log *logger.Logger) gin.HandlerFunc {
	apiKey := []byte(cfg.GetAPIKey())
	secret := cfg.GetJWTSecret()

	return func(c *gin.Context) {
		rawToken, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			rawToken = strings.TrimSpace(c.GetHeader("X-API-Key"))
			if rawToken == "" {
				logAuth(log, c, false, errMissingToken)
				abortUnauthorized(c, errMissingToken)
				return
			}
		}

		if len(apiKey) > 0 && subtle.ConstantTimeCompare([]byte(rawToken), apiKey) == 1 {
			c.Set(ContextPrincipalKey, "api-key")
			c.Set(ContextAuthMethodKey, authMethodAPIKey)
			logAuth(log, c, true, "")
			c.Next()
			return
		}

		if secret == "" {
			logAuth(log, c, false, errInvalidToken)
			abortUnauthorized(c, errInvalidToken)
			return
		}

		claims, err := parseServiceClaims(rawToken, secret)
		if err != nil {
			logAuth(log, c, false, err.Error())
			abortUnauthorized(c, errInvalidToken)
			return
		}

		subject, _ := claims.GetSubject()
		c.Set(ContextPrincipalKey, subject)
		c.Set(ContextAuthMethodKey, authMethodJWT)
		logAuth(log, c, true, "")
		c.Next()
	}
}

func logAuth(log *logger.Logger, c *gin.Context, success bool, reason string) {
	if log == nil {
		return
	}
	log.AuthEvent("api_auth", c.ClientIP(), success, reason)
}

func extractBearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	rawToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func parseServiceClaims(rawToken, secret string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, errors.New(errInvalidToken)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New(errInvalidToken)
	}

	if tokenType, _ := claims["type"].(string); tokenType != "service" {
		return nil, errors.New("token is not a service token")
	}

	return claims, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
