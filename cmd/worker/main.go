package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales_agent_backend/internal/adapters"
	"sales_agent_backend/internal/contacts"
	"sales_agent_backend/internal/crm/salesforce"
	"sales_agent_backend/internal/scheduler"
	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"
	"sales_agent_backend/platform/rediskit"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	redisCheckInterval = 30 * time.Second
	redisMaxFailures   = 4
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the worker")
	}

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

	crm := salesforce.NewClient(cfg, log)
	resolverOpts := contacts.DefaultOptions()
	resolverOpts.Timeout = cfg.GetExternalCallTimeout()
	resolver := contacts.NewResolver(adapters.NewCRMDirectory(crm), resolverOpts, log)

	worker, err := scheduler.NewWorker(cfg, resolver, adapters.NewCRMTaskLogger(crm), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return watchRedis(gctx, rdb, log)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

// watchRedis fails the group when Redis stays unreachable so the process is
// restarted instead of idling.
func watchRedis(ctx context.Context, rdb *redis.Client, log *logger.Logger) error {
	ticker := time.NewTicker(redisCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := rdb.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Warn("redis ping failed", "attempt", failures, "error", err)
			if failures >= redisMaxFailures {
				return fmt.Errorf("redis unreachable: %w", err)
			}
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
