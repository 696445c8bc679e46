package repository

import (
	"context"
	"sync"
	"time"

	"sales_agent_backend/internal/calls/domain"
	"sales_agent_backend/internal/calls/ports"
)

type memoryEntry struct {
	data      []byte
	phone     string
	expiresAt time.Time
}

// Memory is a single-process store for development and tests. Sessions are
// kept encoded so callers never share a pointer with the store.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	phones  map[string]string
	locks   map[string]chan struct{}
	now     func() time.Time
}

// NewMemory creates an empty store.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		phones:  make(map[string]string),
		locks:   make(map[string]chan struct{}),
		now:     time.Now,
	}
}

func (m *Memory) Create(ctx context.Context, s *domain.Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(s.ID); ok {
		return errExists(s.ID)
	}
	m.entries[s.ID] = memoryEntry{data: data, phone: s.Phone, expiresAt: m.now().Add(m.ttl)}
	m.phones[s.Phone] = s.ID
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	e, ok := m.live(id)
	m.mu.Unlock()
	if !ok {
		return nil, errNotFound(id)
	}
	return decode(e.data)
}

func (m *Memory) Save(ctx context.Context, s *domain.Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(s.ID); !ok {
		return errNotFound(s.ID)
	}
	m.entries[s.ID] = memoryEntry{data: data, phone: s.Phone, expiresAt: m.now().Add(m.ttl)}
	if s.Closed() && m.phones[s.Phone] == s.ID {
		delete(m.phones, s.Phone)
	}
	return nil
}

func (m *Memory) FindOpenByPhone(ctx context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.phones[phone]
	if !ok {
		return "", nil
	}
	if _, live := m.live(id); !live {
		delete(m.phones, phone)
		return "", nil
	}
	return id, nil
}

// Lock blocks until the session is free, ctx is done or the wait bound passes.
func (m *Memory) Lock(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	ch, ok := m.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[id] = ch
	}
	m.mu.Unlock()

	timer := time.NewTimer(lockWait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errLockTimeout(id)
	}
}

// live must be called with m.mu held.
func (m *Memory) live(id string) (memoryEntry, bool) {
	e, ok := m.entries[id]
	if !ok {
		return memoryEntry{}, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, id)
		delete(m.locks, id)
		return memoryEntry{}, false
	}
	return e, true
}

var _ ports.SessionStore = (*Memory)(nil)
