package quota

import (
	"context"
	"testing"
	"time"

	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/pkg/models"
)

func TestNextCycleStart(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		anchor time.Time
		want   time.Time
		due    bool
	}{
		{
			name:   "mid cycle",
			anchor: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			due:    false,
		},
		{
			name:   "one month elapsed",
			anchor: time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
			want:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
			due:    true,
		},
		{
			name:   "several months elapsed advances to latest boundary",
			anchor: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			want:   time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
			due:    true,
		},
		{
			name:   "zero anchor resets now",
			anchor: time.Time{},
			want:   now,
			due:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, due := nextCycleStart(tt.anchor, now)
			if due != tt.due {
				t.Fatalf("due = %v, want %v", due, tt.due)
			}
			if due && !got.Equal(tt.want) {
				t.Errorf("next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJanitor_RunCycle(t *testing.T) {
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	fresh := &models.Principal{
		ID: "fresh", Tier: models.TierGrowth,
		TokensUsed: 4000,
		CycleStart: now.AddDate(0, 0, -10),
	}
	stale := &models.Principal{
		ID: "stale", Tier: models.TierGrowth,
		TokensUsed: 4800,
		CycleStart: now.AddDate(0, -2, 0),
	}
	for _, p := range []*models.Principal{fresh, stale} {
		if err := s.CreatePrincipal(ctx, p, ""); err != nil {
			t.Fatalf("CreatePrincipal(%s) error = %v", p.ID, err)
		}
	}

	ledger := NewStoreLedger(s, Ceilings{models.TierGrowth: 5000})
	j := NewJanitor(s, ledger, time.Hour)
	j.now = func() time.Time { return now }

	stats := j.RunCycle(ctx)
	if stats.Scanned != 2 || stats.Reset != 1 {
		t.Fatalf("stats = %+v, want 2 scanned, 1 reset", stats)
	}

	got, _ := s.GetPrincipal(ctx, "stale")
	if got.TokensUsed != 0 {
		t.Errorf("stale TokensUsed = %d, want 0", got.TokensUsed)
	}
	if !got.CycleStart.Equal(now) {
		t.Errorf("stale CycleStart = %v, want advanced to %v", got.CycleStart, now)
	}

	got, _ = s.GetPrincipal(ctx, "fresh")
	if got.TokensUsed != 4000 {
		t.Errorf("fresh TokensUsed = %d, want untouched 4000", got.TokensUsed)
	}

	// A second sweep at the same instant is a no-op.
	stats = j.RunCycle(ctx)
	if stats.Reset != 0 {
		t.Errorf("second sweep reset = %d, want 0", stats.Reset)
	}
}
