// Package devinbox keeps the latest activation token per email for dev-only retrieval
// (credential.v1.DevService/GetActivationToken), so local clients can activate without a mail worker.
package devinbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"credential-lifecycle/internal/mailer"
)

// Store holds plain activation tokens by email. Not used in production.
type Store interface {
	// Put stores token for email until expiresAt, replacing any earlier token.
	Put(ctx context.Context, email, token string, expiresAt time.Time)
	// Get returns the token for email if present and not expired. Returns ok false if missing or expired.
	Get(ctx context.Context, email string) (token string, ok bool)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev inbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores token for email until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, email, token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(email)] = entry{token: token, expiresAt: expiresAt}
}

// Get returns the token for email if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, email string) (string, bool) {
	k := key(email)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.token, true
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Sender records every activation token in a Store, then forwards to next when set.
type Sender struct {
	store Store
	next  mailer.Sender
	ttl   time.Duration
	now   func() time.Time
}

// NewSender wraps next. ttl should match the activation token lifetime.
func NewSender(store Store, next mailer.Sender, ttl time.Duration) *Sender {
	return &Sender{store: store, next: next, ttl: ttl, now: time.Now}
}

func (s *Sender) SendActivation(ctx context.Context, email, token, name string) error {
	s.store.Put(ctx, email, token, s.now().Add(s.ttl))
	if s.next == nil {
		return nil
	}
	return s.next.SendActivation(ctx, email, token, name)
}
