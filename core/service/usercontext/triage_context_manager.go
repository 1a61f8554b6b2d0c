// Package usercontext supplies per-user personalization context for prompt
// construction.
package usercontext

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Manager is a read-through cache over the UserContextStore. Context data is
// read-only during a batch; a store failure degrades to an empty context
// rather than failing the batch.
type Manager struct {
	store out.UserContextStore
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry

	flight singleflight.Group
}

type cacheEntry struct {
	ctx      *domain.UserContext
	loadedAt time.Time
}

// NewManager creates a context manager. store may be nil, in which case
// every lookup returns an empty context.
func NewManager(store out.UserContextStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		store:   store,
		ttl:     ttl,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

// Get returns the user's personalization context. Never fails: missing data
// and store errors both yield an empty context.
func (m *Manager) Get(ctx context.Context, userID uuid.UUID) *domain.UserContext {
	m.mu.RLock()
	entry, ok := m.entries[userID]
	m.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < m.ttl {
		return entry.ctx
	}

	v, _, _ := m.flight.Do(userID.String(), func() (interface{}, error) {
		loaded := m.load(ctx, userID)
		m.mu.Lock()
		m.entries[userID] = cacheEntry{ctx: loaded, loadedAt: time.Now()}
		m.mu.Unlock()
		return loaded, nil
	})
	return v.(*domain.UserContext)
}

// Save persists the context and refreshes the cache.
func (m *Manager) Save(ctx context.Context, uc *domain.UserContext) error {
	if m.store != nil {
		if err := m.store.SaveContext(ctx, uc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.entries[uc.UserID] = cacheEntry{ctx: uc, loadedAt: time.Now()}
	m.mu.Unlock()
	return nil
}

// Invalidate drops the cached entry for a user.
func (m *Manager) Invalidate(userID uuid.UUID) {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
}

func (m *Manager) load(ctx context.Context, userID uuid.UUID) *domain.UserContext {
	empty := &domain.UserContext{UserID: userID}
	if m.store == nil {
		return empty
	}

	uc, err := m.store.GetContext(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("failed to load user context for %s", userID)
		return empty
	}
	if uc == nil {
		return empty
	}
	return uc
}
