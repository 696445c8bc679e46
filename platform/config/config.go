// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AuthConfig provides the credentials accepted by the API.
type AuthConfig interface {
	GetAPIKey() string
	GetJWTSecret() string
}

// RedisConfig provides the Redis connection used for call sessions.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SalesforceConfig provides settings for the CRM adapter.
type SalesforceConfig interface {
	GetSalesforceLoginURL() string
	GetSalesforceClientID() string
	GetSalesforceClientSecret() string
	GetSalesforceUsername() string
	GetSalesforcePassword() string
	GetSalesforceSecurityToken() string
	GetSalesforceAPIVersion() string
	GetSalesforceTaskRecordTypeID() string
	GetSalesforceTaskOwnerID() string
	GetSalesforceLeadSourceDetail() string
}

// GoogleConfig provides the delegated service account settings for Calendar and Gmail.
type GoogleConfig interface {
	GetGoogleCalendarCredentialsFile() string
	GetGmailCredentialsFile() string
	GetOrganizerEmail() string
	GetCalendarID() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailProvider() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
}

// SMSConfig provides settings for the SMS gateway.
type SMSConfig interface {
	GetSMSAPIURL() string
	GetSMSAPIKey() string
	GetSMSFromNumber() string
	GetSMSMessagingProfileID() string
}

// CallsConfig provides settings for the call session orchestrator.
type CallsConfig interface {
	GetRequireCRMConsent() bool
	GetExternalCallTimeout() time.Duration
	GetSessionTTL() time.Duration
	GetOrganizerTimezone() string
	GetDefaultPhoneRegion() string
	GetSignupURL() string
	GetDocsURL() string
	GetSupportURL() string
	GetAcceptableUsePolicyURL() string
}

// PricingConfig provides the optional pricing table override.
type PricingConfig interface {
	GetPricingTablePath() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	CORSAllowAll               bool
	CORSOrigins                []string
	CORSAllowCreds             bool
	APIKey                     string
	JWTSecret                  string
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	SalesforceLoginURL         string
	SalesforceClientID         string
	SalesforceClientSecret     string
	SalesforceUsername         string
	SalesforcePassword         string
	SalesforceSecurityToken    string
	SalesforceAPIVersion       string
	SalesforceTaskRecordTypeID string
	SalesforceTaskOwnerID      string
	SalesforceLeadSourceDetail string
	GoogleCalendarCredentials  string
	GmailCredentials           string
	OrganizerEmail             string
	CalendarID                 string
	EmailProvider              string
	EmailFromName              string
	EmailFromAddress           string
	SMTPHost                   string
	SMTPPort                   int
	SMTPUsername               string
	SMTPPassword               string
	SMSAPIURL                  string
	SMSAPIKey                  string
	SMSFromNumber              string
	SMSMessagingProfileID      string
	RequireCRMConsent          bool
	ExternalCallTimeout        time.Duration
	SessionTTL                 time.Duration
	OrganizerTimezone          string
	DefaultPhoneRegion         string
	SignupURL                  string
	DocsURL                    string
	SupportURL                 string
	AcceptableUsePolicyURL     string
	PricingTablePath           string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AuthConfig implementation
func (c *Config) GetAPIKey() string    { return c.APIKey }
func (c *Config) GetJWTSecret() string { return c.JWTSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// SalesforceConfig implementation
func (c *Config) GetSalesforceLoginURL() string         { return c.SalesforceLoginURL }
func (c *Config) GetSalesforceClientID() string         { return c.SalesforceClientID }
func (c *Config) GetSalesforceClientSecret() string     { return c.SalesforceClientSecret }
func (c *Config) GetSalesforceUsername() string         { return c.SalesforceUsername }
func (c *Config) GetSalesforcePassword() string         { return c.SalesforcePassword }
func (c *Config) GetSalesforceSecurityToken() string    { return c.SalesforceSecurityToken }
func (c *Config) GetSalesforceAPIVersion() string       { return c.SalesforceAPIVersion }
func (c *Config) GetSalesforceTaskRecordTypeID() string { return c.SalesforceTaskRecordTypeID }
func (c *Config) GetSalesforceTaskOwnerID() string      { return c.SalesforceTaskOwnerID }
func (c *Config) GetSalesforceLeadSourceDetail() string { return c.SalesforceLeadSourceDetail }

// GoogleConfig implementation
func (c *Config) GetGoogleCalendarCredentialsFile() string { return c.GoogleCalendarCredentials }
func (c *Config) GetGmailCredentialsFile() string          { return c.GmailCredentials }
func (c *Config) GetOrganizerEmail() string                { return c.OrganizerEmail }
func (c *Config) GetCalendarID() string                    { return c.CalendarID }

// EmailConfig implementation
func (c *Config) GetEmailProvider() string    { return c.EmailProvider }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }

// SMSConfig implementation
func (c *Config) GetSMSAPIURL() string             { return c.SMSAPIURL }
func (c *Config) GetSMSAPIKey() string             { return c.SMSAPIKey }
func (c *Config) GetSMSFromNumber() string         { return c.SMSFromNumber }
func (c *Config) GetSMSMessagingProfileID() string { return c.SMSMessagingProfileID }

// CallsConfig implementation
func (c *Config) GetRequireCRMConsent() bool             { return c.RequireCRMConsent }
func (c *Config) GetExternalCallTimeout() time.Duration  { return c.ExternalCallTimeout }
func (c *Config) GetSessionTTL() time.Duration           { return c.SessionTTL }
func (c *Config) GetOrganizerTimezone() string           { return c.OrganizerTimezone }
func (c *Config) GetDefaultPhoneRegion() string          { return c.DefaultPhoneRegion }
func (c *Config) GetSignupURL() string                   { return c.SignupURL }
func (c *Config) GetDocsURL() string                     { return c.DocsURL }
func (c *Config) GetSupportURL() string                  { return c.SupportURL }
func (c *Config) GetAcceptableUsePolicyURL() string      { return c.AcceptableUsePolicyURL }

// PricingConfig implementation
func (c *Config) GetPricingTablePath() string { return c.PricingTablePath }

// IsSchedulerEnabled reports whether deferred CRM logging can be enqueued.
func (c *Config) IsSchedulerEnabled() bool { return c.RedisURL != "" }

// IsSMSEnabled reports whether the SMS gateway is configured.
func (c *Config) IsSMSEnabled() bool { return c.SMSAPIURL != "" && c.SMSAPIKey != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8000"),
		CORSAllowAll:               corsAllowAll,
		CORSOrigins:                corsOrigins,
		CORSAllowCreds:             strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		APIKey:                     getEnv("API_KEY", ""),
		JWTSecret:                  getEnv("JWT_SECRET", ""),
		RedisURL:                   getEnv("REDIS_URL", ""),
		RedisTLSInsecure:           strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:           mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		SalesforceLoginURL:         getEnv("SALESFORCE_LOGIN_URL", "https://login.salesforce.com"),
		SalesforceClientID:         getEnv("SALESFORCE_CLIENT_ID", ""),
		SalesforceClientSecret:     getEnv("SALESFORCE_CLIENT_SECRET", ""),
		SalesforceUsername:         getEnv("SALESFORCE_USER", ""),
		SalesforcePassword:         getEnv("SALESFORCE_PASSWORD", ""),
		SalesforceSecurityToken:    getEnv("SALESFORCE_TOKEN", ""),
		SalesforceAPIVersion:       getEnv("SALESFORCE_API_VERSION", "v61.0"),
		SalesforceTaskRecordTypeID: getEnv("SALESFORCE_TASK_RECORD_TYPE_ID", ""),
		SalesforceTaskOwnerID:      getEnv("SALESFORCE_TASK_OWNER_ID", ""),
		SalesforceLeadSourceDetail: getEnv("SALESFORCE_LEAD_SOURCE_DETAIL", "Sales Line"),
		GoogleCalendarCredentials:  getEnv("GOOGLE_CALENDAR_CREDENTIALS_FILE", "sales_mcp.json"),
		GmailCredentials:           getEnv("GMAIL_CREDENTIALS_FILE", "gmail_auth.json"),
		OrganizerEmail:             getEnv("ORGANIZER_EMAIL", ""),
		CalendarID:                 getEnv("CALENDAR_ID", ""),
		EmailProvider:              strings.ToLower(getEnv("EMAIL_PROVIDER", "gmail")),
		EmailFromName:              getEnv("EMAIL_FROM_NAME", "Sales"),
		EmailFromAddress:           getEnv("EMAIL_FROM_ADDRESS", ""),
		SMTPHost:                   getEnv("SMTP_HOST", ""),
		SMTPPort:                   mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:               getEnv("SMTP_USERNAME", ""),
		SMTPPassword:               getEnv("SMTP_PASSWORD", ""),
		SMSAPIURL:                  getEnv("SMS_API_URL", "https://api.telnyx.com/v2"),
		SMSAPIKey:                  getEnv("SMS_API_KEY", ""),
		SMSFromNumber:              getEnv("SMS_FROM_NUMBER", ""),
		SMSMessagingProfileID:      getEnv("SMS_MESSAGING_PROFILE_ID", ""),
		RequireCRMConsent:          strings.EqualFold(getEnv("REQUIRE_CRM_CONSENT", "false"), "true"),
		ExternalCallTimeout:        mustDuration(getEnv("EXTERNAL_CALL_TIMEOUT", "8s")),
		SessionTTL:                 mustDuration(getEnv("SESSION_TTL", "2h")),
		OrganizerTimezone:          getEnv("ORGANIZER_TIMEZONE", "America/Los_Angeles"),
		DefaultPhoneRegion:         strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "US")),
		SignupURL:                  getEnv("SIGNUP_URL", ""),
		DocsURL:                    getEnv("DOCS_URL", ""),
		SupportURL:                 getEnv("SUPPORT_URL", ""),
		AcceptableUsePolicyURL:     getEnv("ACCEPTABLE_USE_POLICY_URL", ""),
		PricingTablePath:           getEnv("PRICING_TABLE_PATH", ""),
	}

	if cfg.CalendarID == "" {
		cfg.CalendarID = cfg.OrganizerEmail
	}
	if cfg.EmailFromAddress == "" {
		cfg.EmailFromAddress = cfg.OrganizerEmail
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIKey == "" && c.JWTSecret == "" {
		return fmt.Errorf("API_KEY or JWT_SECRET is required")
	}
	if c.SalesforceUsername == "" || c.SalesforcePassword == "" {
		return fmt.Errorf("SALESFORCE_USER and SALESFORCE_PASSWORD are required")
	}
	if c.SalesforceClientID == "" {
		return fmt.Errorf("SALESFORCE_CLIENT_ID is required")
	}
	if c.OrganizerEmail == "" {
		return fmt.Errorf("ORGANIZER_EMAIL is required")
	}
	switch c.EmailProvider {
	case "gmail", "none":
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
		}
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be one of gmail, smtp, none")
	}
	if c.ExternalCallTimeout <= 0 {
		return fmt.Errorf("EXTERNAL_CALL_TIMEOUT must be a positive duration")
	}
	if _, err := time.LoadLocation(c.OrganizerTimezone); err != nil {
		return fmt.Errorf("ORGANIZER_TIMEZONE: %w", err)
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
