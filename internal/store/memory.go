package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/alexi/internal/domain"
)

// MemoryStore is an in-process Repository. Documents are deep-copied on the
// way in and out, so callers never share state with the store.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{users: make(map[string]*domain.User)}
}

// Seed stores a document as-is (version 1), replacing any existing one.
func (m *MemoryStore) Seed(userID string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.users[userID] = &domain.User{
		UserID:    userID,
		Fields:    cloneFields(fields),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetUser retrieves a copy of the user document.
func (m *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	cp.Fields = cloneFields(u.Fields)
	return &cp, nil
}

// MergeUser merges fields into the document.
func (m *MemoryStore) MergeUser(ctx context.Context, userID string, fields map[string]any, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	u, ok := m.users[userID]
	var current int64
	if ok {
		current = u.Version
	}
	if expectedVersion != AnyVersion && expectedVersion != current {
		return 0, ErrVersionConflict
	}
	if !ok {
		u = &domain.User{UserID: userID, Fields: map[string]any{}, CreatedAt: now}
		m.users[userID] = u
	}
	if u.Fields == nil {
		u.Fields = map[string]any{}
	}
	mergeFields(u.Fields, fields)
	u.Version = current + 1
	u.UpdatedAt = now
	return u.Version, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ Repository = (*MemoryStore)(nil)
