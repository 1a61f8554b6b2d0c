package usercontext

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"triage_server/core/domain"
)

type fakeContextStore struct {
	loads    int32
	contexts map[uuid.UUID]*domain.UserContext
	err      error
}

func (f *fakeContextStore) GetContext(ctx context.Context, userID uuid.UUID) (*domain.UserContext, error) {
	atomic.AddInt32(&f.loads, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.contexts[userID], nil
}

func (f *fakeContextStore) SaveContext(ctx context.Context, uc *domain.UserContext) error {
	if f.contexts == nil {
		f.contexts = make(map[uuid.UUID]*domain.UserContext)
	}
	f.contexts[uc.UserID] = uc
	return nil
}

// TestGetNeverFails verifies lookups degrade to an empty context instead of
// surfacing errors.
func TestGetNeverFails(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name  string
		store *fakeContextStore
	}{
		{"nil store", nil},
		{"store error", &fakeContextStore{err: errors.New("neo4j down")}},
		{"unknown user", &fakeContextStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m *Manager
			if tt.store == nil {
				m = NewManager(nil, 0)
			} else {
				m = NewManager(tt.store, 0)
			}

			uc := m.Get(context.Background(), userID)
			if uc == nil {
				t.Fatal("context must never be nil")
			}
			if uc.UserID != userID {
				t.Errorf("user id = %s, want %s", uc.UserID, userID)
			}
			if uc.Role != "" || len(uc.Interests) != 0 {
				t.Errorf("expected an empty context, got %+v", uc)
			}
		})
	}
}

// TestGetCachesWithinTTL verifies repeated lookups hit the store once.
func TestGetCachesWithinTTL(t *testing.T) {
	userID := uuid.New()
	store := &fakeContextStore{
		contexts: map[uuid.UUID]*domain.UserContext{
			userID: {UserID: userID, Role: "backend engineer", Interests: []string{"infra"}},
		},
	}
	m := NewManager(store, time.Minute)

	first := m.Get(context.Background(), userID)
	if first.Role != "backend engineer" {
		t.Fatalf("role = %q", first.Role)
	}
	for i := 0; i < 5; i++ {
		m.Get(context.Background(), userID)
	}
	if n := atomic.LoadInt32(&store.loads); n != 1 {
		t.Errorf("store loads = %d, want 1 (cached)", n)
	}
}

// TestSaveRefreshesCache verifies a save is visible immediately without a
// store round trip.
func TestSaveRefreshesCache(t *testing.T) {
	userID := uuid.New()
	store := &fakeContextStore{}
	m := NewManager(store, time.Minute)

	// Prime the cache with the empty context.
	m.Get(context.Background(), userID)

	updated := &domain.UserContext{UserID: userID, Role: "manager"}
	if err := m.Save(context.Background(), updated); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := m.Get(context.Background(), userID)
	if got.Role != "manager" {
		t.Errorf("role after save = %q, want manager", got.Role)
	}
	if n := atomic.LoadInt32(&store.loads); n != 1 {
		t.Errorf("store loads = %d, want 1 (save refreshed the cache)", n)
	}
	if store.contexts[userID] != updated {
		t.Error("save must persist to the store")
	}
}

// TestInvalidateForcesReload verifies invalidation drops the cached entry.
func TestInvalidateForcesReload(t *testing.T) {
	userID := uuid.New()
	store := &fakeContextStore{
		contexts: map[uuid.UUID]*domain.UserContext{
			userID: {UserID: userID, Role: "analyst"},
		},
	}
	m := NewManager(store, time.Minute)

	m.Get(context.Background(), userID)
	m.Invalidate(userID)
	m.Get(context.Background(), userID)

	if n := atomic.LoadInt32(&store.loads); n != 2 {
		t.Errorf("store loads = %d, want 2 after invalidate", n)
	}
}

// TestPromptFragment verifies the context renders into prompt text.
func TestPromptFragment(t *testing.T) {
	uc := &domain.UserContext{
		UserID:    uuid.New(),
		Role:      "backend engineer",
		Interests: []string{"infra", "databases"},
	}
	block := uc.PromptFragment()
	if block == "" {
		t.Fatal("non-empty context must render a prompt fragment")
	}

	empty := &domain.UserContext{UserID: uuid.New()}
	if empty.PromptFragment() != "" {
		t.Error("empty context must render nothing")
	}
}
