// Package models defines the shared data types for the Brandbeam gateway.
package models

import "time"

// ── Principals ──────────────────────────────────────────────

// Tier is a principal's subscription tier. It determines the quota ceiling.
type Tier string

const (
	TierStarter Tier = "starter"
	TierGrowth  Tier = "growth"
	TierScale   Tier = "scale"
)

// Principal is the authenticated caller of the gateway.
//
// TokensUsed is monotonically non-decreasing within a billing cycle; only
// the quota ledger's Charge operation may increment it, and only the cycle
// sweeper may zero it. The principal store owns persistence.
type Principal struct {
	ID         string    `json:"id"`
	Tier       Tier      `json:"tier"`
	TokensUsed int64     `json:"tokens_used"`
	CycleStart time.Time `json:"cycle_start"`
	CreatedAt  time.Time `json:"created_at"`
}

// ── Normalized results ──────────────────────────────────────

// ResultKind identifies which of the three canonical result shapes a
// NormalizedResult carries.
type ResultKind string

const (
	ResultText       ResultKind = "text"
	ResultStructured ResultKind = "structured"
	ResultGrounded   ResultKind = "grounded"
)

// Citation is one grounding source attached to a grounded result.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

// GroundedAnswer is generated text plus the retrieval citations the
// backend consulted while producing it. Citations may be empty.
type GroundedAnswer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// NormalizedResult is the uniform gateway output. Exactly one of Text,
// Structured, or Grounded is set, matching Kind.
type NormalizedResult struct {
	Kind       ResultKind      `json:"-"`
	Text       string          `json:"text,omitempty"`
	Structured any             `json:"structured,omitempty"`
	Grounded   *GroundedAnswer `json:"grounded,omitempty"`
}

// Inner returns the single inner value for the HTTP response envelope.
func (r *NormalizedResult) Inner() any {
	switch r.Kind {
	case ResultStructured:
		return r.Structured
	case ResultGrounded:
		return r.Grounded
	default:
		return r.Text
	}
}

// ── Usage ───────────────────────────────────────────────────

// UsageSummary reports a principal's consumption against its ceiling.
type UsageSummary struct {
	PrincipalID string `json:"principal_id"`
	Tier        Tier   `json:"tier"`
	TokensUsed  int64  `json:"tokens_used"`
	Ceiling     int64  `json:"ceiling"`
	Remaining   int64  `json:"remaining"`
}
