// Package rediskit builds Redis connection options shared by the session
// store and the asynq scheduler.
// This is part of the platform layer and contains no business logic.
package rediskit

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options parses a redis:// or rediss:// URL. tlsInsecure skips certificate
// verification for managed Redis with self-signed certs.
func Options(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return opt, nil
}

// Connect opens a client and verifies it with PING.
func Connect(ctx context.Context, redisURL string, tlsInsecure bool) (*redis.Client, error) {
	opt, err := Options(redisURL, tlsInsecure)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
