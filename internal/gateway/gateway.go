// Package gateway orchestrates one agent invocation end to end:
//
//	resolve contract → quota check → sanitize payload →
//	invoke backend → charge ledger → normalize response
//
// The flow is linear with one branch: unknown agents and exhausted quotas
// short-circuit before any backend cost is incurred. Each request owns
// exactly one charge-or-discard decision; a cancelled or failed invocation
// charges nothing, a successful one charges exactly once even when
// normalization later fails.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brandbeam/brandbeam/internal/invoker"
	"github.com/brandbeam/brandbeam/internal/normalize"
	"github.com/brandbeam/brandbeam/internal/quota"
	"github.com/brandbeam/brandbeam/internal/registry"
	"github.com/brandbeam/brandbeam/internal/sanitize"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// Backend issues the generation call. Satisfied by *invoker.Invoker;
// tests substitute fakes.
type Backend interface {
	Invoke(ctx context.Context, contract *registry.Contract, payload map[string]any) (*invoker.Response, error)
}

// Gateway executes agent invocations under the quota budget.
type Gateway struct {
	registry       *registry.Registry
	ledger         quota.Ledger
	backend        Backend
	fallbackCharge int64
}

// New wires the gateway from its explicit dependencies.
func New(reg *registry.Registry, ledger quota.Ledger, backend Backend, fallbackCharge int64) *Gateway {
	if fallbackCharge <= 0 {
		fallbackCharge = 500
	}
	return &Gateway{
		registry:       reg,
		ledger:         ledger,
		backend:        backend,
		fallbackCharge: fallbackCharge,
	}
}

// Registry exposes the contract table for discovery endpoints.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Ledger exposes the quota ledger for usage endpoints.
func (g *Gateway) Ledger() quota.Ledger { return g.ledger }

// Execute runs one invocation for an authenticated principal.
//
// Error kinds surfaced to the caller: registry.ErrUnknownAgent,
// quota.ErrQuotaExceeded, invoker.ErrInvocation, normalize.ErrNormalization.
func (g *Gateway) Execute(ctx context.Context, principal *models.Principal, agentName string, payload map[string]any) (*models.NormalizedResult, error) {
	// Resolve first: an unknown agent must fail without touching the ledger.
	contract, err := g.registry.Resolve(agentName)
	if err != nil {
		g.logFailure(principal, agentName, "unknown_agent")
		return nil, err
	}

	if err := g.ledger.CheckAndReserve(ctx, principal); err != nil {
		g.logFailure(principal, agentName, "quota_exceeded")
		return nil, err
	}

	cleaned := sanitize.CleanPayload(payload)

	raw, err := g.backend.Invoke(ctx, contract, cleaned)
	if err != nil {
		// Covers cancellation too: the caller went away, the backend call
		// was abandoned, and no charge is recorded.
		g.logFailure(principal, agentName, "invocation_failure")
		return nil, err
	}

	charged := raw.TotalTokens()
	if charged <= 0 {
		charged = g.fallbackCharge
	}
	if err := g.ledger.Charge(ctx, principal, charged); err != nil {
		// The backend call succeeded, so the cost was real; a ledger write
		// failure must not hide that from operators.
		log.Error().
			Err(err).
			Str("principal", principal.ID).
			Str("agent", agentName).
			Int64("tokens", charged).
			Msg("Quota charge failed after successful invocation")
		return nil, fmt.Errorf("%w: charge failed", invoker.ErrInvocation)
	}

	result, err := normalize.Normalize(contract, raw)
	if err != nil {
		g.logFailure(principal, agentName, "normalization_failure")
		return nil, err
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.String("brandbeam.agent", agentName),
			attribute.String("brandbeam.model", contract.Model),
			attribute.String("brandbeam.result_kind", string(result.Kind)),
			attribute.Int64("brandbeam.tokens_charged", charged),
		)
	}

	log.Info().
		Str("principal", principal.ID).
		Str("agent", agentName).
		Str("result_kind", string(result.Kind)).
		Int64("tokens", charged).
		Msg("Agent invocation complete")

	return result, nil
}

// logFailure records an error with principal id, agent name, and kind only.
// Raw prompts and raw model output are never logged.
func (g *Gateway) logFailure(principal *models.Principal, agentName, kind string) {
	log.Warn().
		Str("principal", principal.ID).
		Str("agent", agentName).
		Str("error_kind", kind).
		Msg("Agent invocation failed")
}

// ErrorStatus classifies a gateway error into the four caller-visible kinds.
func ErrorStatus(err error) string {
	switch {
	case errors.Is(err, registry.ErrUnknownAgent):
		return "unknown_agent"
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, normalize.ErrNormalization):
		return "normalization_failure"
	default:
		return "invocation_failure"
	}
}
