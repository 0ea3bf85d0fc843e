package repository

import (
	"context"
	"sync"

	"credential-lifecycle/internal/session/domain"
)

type sessionKey struct{ userID, deviceID string }

// MemoryRepository is an in-process Repository. A single mutex serializes all
// updates, so Rotate is a true compare-and-set.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[sessionKey]domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[sessionKey]domain.Session)}
}

func (r *MemoryRepository) GetByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{userID, deviceID}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{s.UserID, s.DeviceID}
	next := *s
	if cur, ok := r.sessions[k]; ok {
		next.CreatedAt = cur.CreatedAt
	}
	r.sessions[k] = next
	return nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, prevHash string, next *domain.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{next.UserID, next.DeviceID}
	cur, ok := r.sessions[k]
	if !ok || cur.Revoked || cur.RefreshHash != prevHash {
		return false, nil
	}
	cur.JTI = next.JTI
	cur.RefreshHash = next.RefreshHash
	cur.ExpiresAt = next.ExpiresAt
	cur.LastUsedAt = next.LastUsedAt
	cur.Revoked = false
	r.sessions[k] = cur
	return true, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, userID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{userID, deviceID}
	if cur, ok := r.sessions[k]; ok {
		cur.Revoked = true
		r.sessions[k] = cur
	}
	return nil
}
