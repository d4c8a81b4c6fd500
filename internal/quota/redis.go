package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// RedisLedger keeps the live usage counter in Redis and writes through to
// the principal store. Multi-replica deployments share one counter this
// way, which narrows (but does not close) the check-then-charge window:
// the quota stays a soft budget.
type RedisLedger struct {
	rdb      *redis.Client
	store    store.Store
	ceilings Ceilings
}

// NewRedisLedger connects to Redis and returns the cache-backed ledger.
func NewRedisLedger(ctx context.Context, url string, s store.Store, ceilings Ceilings) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLedger{rdb: rdb, store: s, ceilings: ceilings}, nil
}

func usageKey(principalID string) string { return "quota:usage:" + principalID }

func (l *RedisLedger) Ceiling(tier models.Tier) int64 {
	c, ok := l.ceilings[tier]
	if !ok {
		return l.ceilings[models.TierStarter]
	}
	return c
}

func (l *RedisLedger) CheckAndReserve(ctx context.Context, p *models.Principal) error {
	used, err := l.currentUsage(ctx, p)
	if err != nil {
		return fmt.Errorf("read usage for %s: %w", p.ID, err)
	}
	ceiling := l.Ceiling(p.Tier)
	if used >= ceiling {
		return fmt.Errorf("%w: %d of %d tokens used on %s tier", ErrQuotaExceeded, used, ceiling, p.Tier)
	}
	return nil
}

func (l *RedisLedger) Charge(ctx context.Context, p *models.Principal, amount int64) error {
	// Bump the shared counter first so concurrent replicas see the charge
	// immediately, then write through to the durable store.
	total, err := l.rdb.IncrBy(ctx, usageKey(p.ID), amount).Result()
	if err != nil {
		return fmt.Errorf("incr usage for %s: %w", p.ID, err)
	}
	if _, err := l.store.AddTokensUsed(ctx, p.ID, amount); err != nil {
		return fmt.Errorf("persist usage for %s: %w", p.ID, err)
	}
	p.TokensUsed = total
	return nil
}

func (l *RedisLedger) Reset(ctx context.Context, p *models.Principal, cycleStart time.Time) error {
	// Drop the cached counter first so a stale value cannot outlive the
	// durable reset; the next check reseeds from the store.
	if err := l.rdb.Del(ctx, usageKey(p.ID)).Err(); err != nil {
		return fmt.Errorf("drop cached usage for %s: %w", p.ID, err)
	}
	if err := l.store.ResetUsage(ctx, p.ID, cycleStart); err != nil {
		return fmt.Errorf("reset principal %s: %w", p.ID, err)
	}
	p.TokensUsed = 0
	p.CycleStart = cycleStart
	return nil
}

// currentUsage reads the cached counter, lazily seeding it from the store
// when the key is missing (cold cache or expired).
func (l *RedisLedger) currentUsage(ctx context.Context, p *models.Principal) (int64, error) {
	used, err := l.rdb.Get(ctx, usageKey(p.ID)).Int64()
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, err
	}

	// Seed from the durable store. SetNX keeps a concurrent charge from
	// being overwritten by the seed.
	if err := l.rdb.SetNX(ctx, usageKey(p.ID), p.TokensUsed, 0).Err(); err != nil {
		return 0, err
	}
	return l.rdb.Get(ctx, usageKey(p.ID)).Int64()
}

// Close releases the Redis connection.
func (l *RedisLedger) Close() error { return l.rdb.Close() }
