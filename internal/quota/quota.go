// Package quota tracks and enforces the per-principal cumulative token
// budget. The check-then-charge pattern is deliberately best-effort:
// concurrent requests from one principal may race between check and charge,
// so the ceiling is a soft budget that can be slightly exceeded under
// bursts, never a hard transactional limit.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brandbeam/brandbeam/internal/config"
	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// ErrQuotaExceeded is returned when a principal's usage has reached the
// ceiling for its tier. The request must stop before any backend cost.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Ledger checks and charges a principal's usage counter.
type Ledger interface {
	// CheckAndReserve rejects the request when the principal is at or over
	// its tier ceiling. Advisory: no reservation is held.
	CheckAndReserve(ctx context.Context, p *models.Principal) error

	// Charge adds the invocation cost to the principal's counter. Called
	// exactly once per successful invocation; failed invocations charge
	// nothing. Updates p.TokensUsed to the new persisted total.
	Charge(ctx context.Context, p *models.Principal, amount int64) error

	// Reset zeroes the principal's counter at the start of a new billing
	// cycle. Only the cycle sweeper calls this.
	Reset(ctx context.Context, p *models.Principal, cycleStart time.Time) error

	// Ceiling returns the budget for a tier.
	Ceiling(tier models.Tier) int64
}

// Ceilings maps each tier to its token budget.
type Ceilings map[models.Tier]int64

// CeilingsFromConfig builds the tier table from configuration.
func CeilingsFromConfig(cfg config.QuotaConfig) Ceilings {
	return Ceilings{
		models.TierStarter: cfg.StarterCeiling,
		models.TierGrowth:  cfg.GrowthCeiling,
		models.TierScale:   cfg.ScaleCeiling,
	}
}

// StoreLedger is the store-backed Ledger. Reads come from the principal
// handed in (loaded by auth middleware for this request); writes go through
// the store's atomic increment.
type StoreLedger struct {
	store    store.Store
	ceilings Ceilings
}

// NewStoreLedger creates a ledger persisting through the principal store.
func NewStoreLedger(s store.Store, ceilings Ceilings) *StoreLedger {
	return &StoreLedger{store: s, ceilings: ceilings}
}

func (l *StoreLedger) Ceiling(tier models.Tier) int64 {
	c, ok := l.ceilings[tier]
	if !ok {
		// Unknown tier gets the most conservative budget.
		return l.ceilings[models.TierStarter]
	}
	return c
}

func (l *StoreLedger) CheckAndReserve(ctx context.Context, p *models.Principal) error {
	ceiling := l.Ceiling(p.Tier)
	if p.TokensUsed >= ceiling {
		return fmt.Errorf("%w: %d of %d tokens used on %s tier", ErrQuotaExceeded, p.TokensUsed, ceiling, p.Tier)
	}
	return nil
}

func (l *StoreLedger) Charge(ctx context.Context, p *models.Principal, amount int64) error {
	total, err := l.store.AddTokensUsed(ctx, p.ID, amount)
	if err != nil {
		return fmt.Errorf("charge principal %s: %w", p.ID, err)
	}
	p.TokensUsed = total
	return nil
}

func (l *StoreLedger) Reset(ctx context.Context, p *models.Principal, cycleStart time.Time) error {
	if err := l.store.ResetUsage(ctx, p.ID, cycleStart); err != nil {
		return fmt.Errorf("reset principal %s: %w", p.ID, err)
	}
	p.TokensUsed = 0
	p.CycleStart = cycleStart
	return nil
}
