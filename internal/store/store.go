// Package store provides the principal store interface and implementations
// for the Brandbeam gateway. The gateway consults it before every call and
// the quota ledger writes through it after every successful invocation.
package store

import (
	"context"
	"time"

	"github.com/brandbeam/brandbeam/pkg/models"
)

// Store is the principal store. Handler and ledger code depend on this
// interface, making it easy to swap between in-memory (tests) and
// PostgreSQL (production) implementations.
type Store interface {
	// GetPrincipal returns a principal by id.
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)

	// GetPrincipalByToken resolves an opaque bearer token to its principal.
	GetPrincipalByToken(ctx context.Context, token string) (*models.Principal, error)

	// CreatePrincipal registers a principal with its bearer token.
	CreatePrincipal(ctx context.Context, p *models.Principal, token string) error

	// AddTokensUsed atomically increments a principal's usage counter and
	// returns the new total. This is the only write path for TokensUsed.
	AddTokensUsed(ctx context.Context, id string, amount int64) (int64, error)

	// ListPrincipals returns all principals. Used by the billing-cycle
	// sweeper; not exposed over HTTP.
	ListPrincipals(ctx context.Context) ([]models.Principal, error)

	// ResetUsage zeroes a principal's usage counter and records the start
	// of the new billing cycle.
	ResetUsage(ctx context.Context, id string, cycleStart time.Time) error

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
