package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/calls/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "call:session:"
	phoneKeyPrefix   = "call:phone:"
	lockKeyPrefix    = "call:lock:"
)

// deleteIfEquals removes KEYS[1] only while it still holds ARGV[1]. Used for
// lock release and for dropping a phone index that a newer call took over.
var deleteIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendIfEquals resets the PX of KEYS[1] to ARGV[2] while it still holds
// ARGV[1]. Returns 0 once the lock has been lost.
var extendIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis stores sessions as JSON with a sliding TTL and locks them with
// SET NX PX so several API replicas can serve one call.
type Redis struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedis wraps a connected client.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func phoneKey(phone string) string { return phoneKeyPrefix + phone }
func lockKey(id string) string     { return lockKeyPrefix + id }

func (r *Redis) Create(ctx context.Context, s *domain.Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errExists(s.ID)
	}
	return r.rdb.Set(ctx, phoneKey(s.Phone), s.ID, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, id string) (*domain.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (r *Redis) Save(ctx context.Context, s *domain.Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetXX(ctx, sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound(s.ID)
	}

	if s.Closed() {
		return deleteIfEquals.Run(ctx, r.rdb, []string{phoneKey(s.Phone)}, s.ID).Err()
	}
	return r.rdb.Expire(ctx, phoneKey(s.Phone), r.ttl).Err()
}

func (r *Redis) FindOpenByPhone(ctx context.Context, phone string) (string, error) {
	id, err := r.rdb.Get(ctx, phoneKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Lock polls SET NX PX with a random token. While held, the lock is extended
// every third of its TTL so a step that outlives lockTTL keeps exclusive
// access. Release only deletes the key if the token still matches, so an
// expired holder cannot free a newer lock.
func (r *Redis) Lock(ctx context.Context, id string) (func(), error) {
	key := lockKey(id)
	token := uuid.NewString()
	deadline := time.Now().Add(lockWait)

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return r.hold(context.WithoutCancel(ctx), key, token), nil
		}
		if time.Now().After(deadline) {
			return nil, errLockTimeout(id)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

// hold keeps key alive until the returned release func runs or the lock is
// taken over.
func (r *Redis) hold(ctx context.Context, key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				held, err := extendIfEquals.Run(ctx, r.rdb, []string{key}, token, r.lockTTL.Milliseconds()).Int()
				if err == nil && held == 0 {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = deleteIfEquals.Run(ctx, r.rdb, []string{key}, token).Err()
		})
	}
}

var _ ports.SessionStore = (*Redis)(nil)
