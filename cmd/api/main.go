package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales_agent_backend/internal/adapters"
	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls"
	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/internal/calls/repository"
	callservice "sales_agent_backend/internal/calls/service"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/internal/crm/salesforce"
	"sales_agent_backend/internal/email"
	"sales_agent_backend/internal/events"
	"sales_agent_backend/internal/gcal"
	apphttp "sales_agent_backend/internal/http"
	"sales_agent_backend/internal/http/router"
	"sales_agent_backend/internal/integrations"
	integrationservice "sales_agent_backend/internal/integrations/service"
	"sales_agent_backend/internal/pricing"
	"sales_agent_backend/internal/scheduler"
	"sales_agent_backend/internal/sms"
	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/rediskit"
	"sales_agent_backend/platform/validator"

	"github.com/redis/go-redis/v9"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type redisHealth struct{ client *redis.Client }

func (h redisHealth) Ping(ctx context.Context) error { return h.client.Ping(ctx).Err() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	table, err := loadPricing(cfg)
	if err != nil {
		log.Error("failed to load pricing table", "error", err)
		panic("failed to load pricing table: " + err.Error())
	}
	log.Info("pricing table loaded", "countries", len(table.Rates), "number_types", len(table.Fees))

	var (
		store  ports.SessionStore
		health apphttp.HealthChecker
	)
	if cfg.GetRedisURL() != "" {
		var rdb *redis.Client
		if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
			c, err := rediskit.Connect(ctx, cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
			if err != nil {
				return err
			}
			rdb = c
			return nil
		}); err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		defer func() { _ = rdb.Close() }()
		store = repository.NewRedis(rdb, cfg.GetSessionTTL())
		health = redisHealth{client: rdb}
		log.Info("redis session store ready")
	} else {
		log.Warn("REDIS_URL not configured; call sessions are kept in memory")
		store = repository.NewMemory(cfg.GetSessionTTL())
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	taskScheduler, closeScheduler := initTaskScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}
	if taskScheduler != nil {
		scheduler.SubscribeDeferredTaskLogs(eventBus, taskScheduler, log)
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// External Systems
	// ========================================================================

	crm := salesforce.NewClient(cfg, log)
	resolverOpts := contacts.DefaultOptions()
	resolverOpts.Timeout = cfg.GetExternalCallTimeout()
	resolver := contacts.NewResolver(adapters.NewCRMDirectory(crm), resolverOpts, log)

	cal, err := gcal.NewFromCredentialsFile(ctx, cfg.GetGoogleCalendarCredentialsFile(), cfg.GetOrganizerEmail(), log)
	if err != nil {
		log.Error("failed to initialize calendar client", "error", err)
		panic("failed to initialize calendar client: " + err.Error())
	}
	negotiator, err := availability.NewNegotiator(cal, availability.Config{
		CalendarID: cfg.GetCalendarID(),
		Timezone:   cfg.GetOrganizerTimezone(),
		Timeout:    cfg.GetExternalCallTimeout(),
	}, log)
	if err != nil {
		log.Error("failed to initialize availability negotiator", "error", err)
		panic("failed to initialize availability negotiator: " + err.Error())
	}

	sender, err := email.NewSender(ctx, cfg, cfg, email.Links{
		SignupURL:  cfg.GetSignupURL(),
		DocsURL:    cfg.GetDocsURL(),
		SupportURL: cfg.GetSupportURL(),
		PolicyURL:  cfg.GetAcceptableUsePolicyURL(),
	}, log)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	smsClient := sms.NewClient(cfg, log)
	if smsClient == nil {
		log.Warn("SMS gateway not configured; email requests fall back to voice")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	callsModule := calls.NewModule(callservice.Deps{
		Store:      store,
		Table:      table,
		Resolver:   resolver,
		Negotiator: negotiator,
		Tasks:      adapters.NewCRMTaskLogger(crm),
		SMS:        smsClient,
		Email:      sender,
		Bus:        eventBus,
		Log:        log,
	}, callservice.Config{
		RequireCRMConsent: cfg.GetRequireCRMConsent(),
		Timeout:           cfg.GetExternalCallTimeout(),
		PhoneRegion:       cfg.GetDefaultPhoneRegion(),
		SenderCompany:     cfg.GetEmailFromName(),
	}, val)

	integrationsModule := integrations.NewModule(sender, cal, crm, integrationservice.Config{
		CalendarID: cfg.GetCalendarID(),
		Timezone:   cfg.GetOrganizerTimezone(),
		Timeout:    cfg.GetExternalCallTimeout(),
	}, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health,
		Info:     apphttp.ServiceInfo{Name: "sales-agent-backend", Version: version, Environment: cfg.Env},
		EventBus: eventBus,
		Modules: []apphttp.Module{
			callsModule,
			integrationsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.GetHTTPAddr())
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		// Let deferred task logs reach the queue before Redis closes.
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func loadPricing(cfg config.PricingConfig) (*pricing.Table, error) {
	if path := cfg.GetPricingTablePath(); path != "" {
		return pricing.Load(path)
	}
	return pricing.LoadDefault()
}

func initTaskScheduler(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.TaskLogScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; failed CRM task writes are not retried")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task log scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
