package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/calls/ports"
	"sales_agent_backend/platform/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, time.Hour), mr
}

func stores(t *testing.T) map[string]ports.SessionStore {
	r, _ := newRedisStore(t)
	return map[string]ports.SessionStore{
		"memory": NewMemory(time.Hour),
		"redis":  r,
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := domain.NewSession("s1", "+14155552671", time.Now())

			if err := store.Create(ctx, s); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := store.Create(ctx, s); !apperr.Is(err, apperr.KindConflict) {
				t.Fatalf("expected conflict on second create, got %v", err)
			}

			id, err := store.FindOpenByPhone(ctx, "+14155552671")
			if err != nil || id != "s1" {
				t.Fatalf("FindOpenByPhone = %q, %v", id, err)
			}

			s.Email = "ada@example.com"
			if err := store.Save(ctx, s); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Email != "ada@example.com" || got.State != domain.StateStart {
				t.Fatalf("unexpected session %+v", got)
			}
			got.Email = "mutated@example.com"
			again, _ := store.Get(ctx, "s1")
			if again.Email != "ada@example.com" {
				t.Fatal("store must not share state with callers")
			}

			s.State = domain.StateClosed
			if err := store.Save(ctx, s); err != nil {
				t.Fatalf("Save closed: %v", err)
			}
			if id, _ := store.FindOpenByPhone(ctx, "+14155552671"); id != "" {
				t.Fatalf("closed session must leave the phone index, got %q", id)
			}
		})
	}
}

func TestStoreMissingSession(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Get(ctx, "nope"); !apperr.Is(err, apperr.KindNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			if err := store.Save(ctx, domain.NewSession("nope", "+1", time.Now())); !apperr.Is(err, apperr.KindNotFound) {
				t.Fatalf("expected not found on save, got %v", err)
			}
			if id, err := store.FindOpenByPhone(ctx, "+19999999999"); err != nil || id != "" {
				t.Fatalf("expected empty lookup, got %q %v", id, err)
			}
		})
	}
}

func TestStoreLockSerializes(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var inside, maxInside int32
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := store.Lock(ctx, "s1")
					if err != nil {
						t.Errorf("Lock: %v", err)
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					unlock()
				}()
			}
			wg.Wait()

			if maxInside != 1 {
				t.Fatalf("expected exclusive access, saw %d holders", maxInside)
			}
		})
	}
}

func TestLockHonoursContext(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := store.Lock(context.Background(), "s1")
			if err != nil {
				t.Fatalf("Lock: %v", err)
			}
			defer unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			if _, err := store.Lock(ctx, "s1"); err == nil {
				t.Fatal("expected second lock to fail while held")
			}
		})
	}
}

func TestRedisStaleUnlockKeepsNewerLock(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	unlockOld, err := store.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	mr.FastForward(lockTTL + time.Second)

	unlockNew, err := store.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("expected lock after expiry: %v", err)
	}
	defer unlockNew()

	unlockOld()
	if !mr.Exists(lockKey("s1")) {
		t.Fatal("stale holder released a lock it no longer owns")
	}
}

func TestRedisLockOutlivesTTLWhileHeld(t *testing.T) {
	store, mr := newRedisStore(t)
	store.lockTTL = 600 * time.Millisecond
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Each round lets the holder refresh, then ages the key by two thirds of
	// its TTL. Three rounds age it well past lockTTL in total.
	for i := 0; i < 3; i++ {
		time.Sleep(store.lockTTL / 2)
		mr.FastForward(store.lockTTL * 2 / 3)
		if !mr.Exists(lockKey("s1")) {
			t.Fatalf("lock expired while still held (round %d)", i)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := store.Lock(waitCtx, "s1"); err == nil {
		t.Fatal("second holder acquired a lock that is still held")
	}

	unlock()
	if mr.Exists(lockKey("s1")) {
		t.Fatal("release must delete the lock")
	}

	mr.FastForward(store.lockTTL * 2)
	unlockNext, err := store.Lock(ctx, "s1")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	unlockNext()
}

func TestRedisSessionExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, domain.NewSession("s1", "+14155552671", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(ctx, "s1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestMemorySessionExpires(t *testing.T) {
	store := NewMemory(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()
	if err := store.Create(ctx, domain.NewSession("s1", "+14155552671", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "s1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if id, _ := store.FindOpenByPhone(ctx, "+14155552671"); id != "" {
		t.Fatalf("expected expired phone index, got %q", id)
	}
}
