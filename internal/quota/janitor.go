package quota

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brandbeam/brandbeam/internal/store"
)

// DefaultSweepInterval is how often the janitor looks for expired cycles.
const DefaultSweepInterval = time.Hour

// CycleStats tracks what happened in a single sweep.
type CycleStats struct {
	Scanned int
	Reset   int
	Errors  []error
}

// Janitor rolls principals into their next billing cycle. A principal whose
// cycle anchor is at least one calendar month old gets its usage counter
// zeroed and the anchor advanced by whole months, preserving the anchor day.
//
// It runs as a background goroutine and respects context cancellation for
// graceful shutdown. Reset failures leave the principal untouched and are
// retried on the next sweep.
type Janitor struct {
	store    store.Store
	ledger   Ledger
	interval time.Duration

	now func() time.Time // injectable for tests
}

// NewJanitor creates a janitor that sweeps on the given interval.
func NewJanitor(s store.Store, ledger Ledger, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		store:    s,
		ledger:   ledger,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the janitor. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Msg("Billing cycle janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Billing cycle janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep across all principals.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := j.now()
	stats := CycleStats{}

	principals, err := j.store.ListPrincipals(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cycle sweep: failed to list principals")
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	stats.Scanned = len(principals)

	for i := range principals {
		p := &principals[i]
		next, due := nextCycleStart(p.CycleStart, start)
		if !due {
			continue
		}
		if err := j.ledger.Reset(ctx, p, next); err != nil {
			log.Warn().Err(err).Str("principal", p.ID).Msg("Cycle reset failed")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Reset++
	}

	if stats.Reset > 0 {
		log.Info().
			Int("reset", stats.Reset).
			Int("scanned", stats.Scanned).
			Dur("elapsed", time.Since(start)).
			Msg("Cycle sweep complete")
	}
	return stats
}

// nextCycleStart advances anchor by whole months until it is within one
// month of now. Reports false when the current cycle has not ended yet, or
// when the anchor is unset (legacy rows reset on their next sweep).
func nextCycleStart(anchor, now time.Time) (time.Time, bool) {
	if anchor.IsZero() {
		return now, true
	}
	next := anchor.AddDate(0, 1, 0)
	if next.After(now) {
		return time.Time{}, false
	}
	for !next.AddDate(0, 1, 0).After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next, true
}
