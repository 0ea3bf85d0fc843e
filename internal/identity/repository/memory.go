package repository

import (
	"context"
	"sync"
	"time"

	"credential-lifecycle/internal/identity/domain"
)

// MemoryRepository is an in-process Repository for development and tests.
// Each method holds the lock for its whole read-modify-write, which makes the
// conditional updates atomic.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Identity
	byEmail map[string]string
}

// NewMemoryRepository returns an empty in-memory identity repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Identity),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetByActivationToken(ctx context.Context, token string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.findToken(token); i != nil {
		return i.Clone(), nil
	}
	return nil, nil
}

func (r *MemoryRepository) ConsumeActivationToken(ctx context.Context, token string, now time.Time) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.findToken(token)
	if i == nil || i.ActivationExpiresAt == nil || !i.ActivationExpiresAt.After(now) {
		return nil, nil
	}
	activate(i, now)
	return i.Clone(), nil
}

func (r *MemoryRepository) ForceActivate(ctx context.Context, id, token string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok || i.ActivationToken == nil || *i.ActivationToken != token {
		return false, nil
	}
	activate(i, now)
	return true, nil
}

func (r *MemoryRepository) SetActivationToken(ctx context.Context, id, token string, expiresAt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[id]
	if !ok || i.IsActive {
		return false, nil
	}
	i.ActivationToken = &token
	i.ActivationExpiresAt = &expiresAt
	i.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) SetActiveAccount(ctx context.Context, id, accountID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[id]; ok {
		i.ActiveAccountID = accountID
		i.UpdatedAt = now
	}
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	if err := i.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[i.Email]; ok {
		return ErrDuplicateEmail
	}
	r.byID[i.ID] = i.Clone()
	r.byEmail[i.Email] = i.ID
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[id]; ok {
		delete(r.byEmail, i.Email)
		delete(r.byID, id)
	}
	return nil
}

func (r *MemoryRepository) findToken(token string) *domain.Identity {
	for _, i := range r.byID {
		if i.ActivationToken != nil && *i.ActivationToken == token {
			return i
		}
	}
	return nil
}

func activate(i *domain.Identity, now time.Time) {
	i.IsActive = true
	i.ActivationToken = nil
	i.ActivationExpiresAt = nil
	i.UpdatedAt = now
}
