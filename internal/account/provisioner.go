// Package account provisions the default ledger account a new identity needs.
// Ledger semantics live elsewhere; this package only hands out account ids.
package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidCurrency is returned for a currency that is not a three-letter code.
var ErrInvalidCurrency = errors.New("account: currency must be a three-letter code")

// Provisioner creates the default account for a newly registered user and returns its id.
type Provisioner interface {
	ProvisionDefault(ctx context.Context, userID, currency string) (string, error)
}

// Account is a provisioned default account.
type Account struct {
	ID        string
	UserID    string
	Currency  string
	CreatedAt time.Time
}

// LocalProvisioner issues UUID account ids and keeps them in memory. Provisioning
// twice for the same user returns the existing account.
type LocalProvisioner struct {
	mu     sync.Mutex
	byUser map[string]Account
}

// NewLocalProvisioner returns an empty LocalProvisioner.
func NewLocalProvisioner() *LocalProvisioner {
	return &LocalProvisioner{byUser: make(map[string]Account)}
}

func (p *LocalProvisioner) ProvisionDefault(ctx context.Context, userID, currency string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	currency, ok := NormalizeCurrency(currency)
	if !ok {
		return "", ErrInvalidCurrency
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.byUser[userID]; ok {
		return a.ID, nil
	}
	a := Account{ID: uuid.NewString(), UserID: userID, Currency: currency, CreatedAt: time.Now().UTC()}
	p.byUser[userID] = a
	return a.ID, nil
}

// NormalizeCurrency upper-cases and trims c and reports whether it is three ASCII letters.
func NormalizeCurrency(c string) (string, bool) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if len(c) != 3 {
		return c, false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return c, false
		}
	}
	return c, true
}

// Get returns the default account of userID.
func (p *LocalProvisioner) Get(userID string) (Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.byUser[userID]
	return a, ok
}
