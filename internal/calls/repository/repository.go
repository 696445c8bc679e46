// Package repository stores call sessions. Sessions are ephemeral: both
// stores expire them after a TTL.
package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/platform/apperr"
)

const (
	// DefaultTTL keeps a session for the length of a long call plus follow-up.
	DefaultTTL = 2 * time.Hour
	// lockTTL bounds how long a crashed holder can block a session. A live
	// holder keeps extending it.
	lockTTL = 30 * time.Second
	// lockWait bounds how long a request queues behind another on one session.
	lockWait = 15 * time.Second
	lockPoll = 25 * time.Millisecond
)

const msgSessionNotFound = "call session not found"

func errNotFound(id string) error {
	return apperr.NotFound(msgSessionNotFound).WithDetails(map[string]string{"session_id": id})
}

func errExists(id string) error {
	return apperr.Conflict("call session already exists").WithDetails(map[string]string{"session_id": id})
}

func errLockTimeout(id string) error {
	return apperr.Wrap(apperr.KindUnavailable, "call session is busy", fmt.Errorf("lock %s not acquired within %s", id, lockWait))
}

func encode(s *domain.Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
