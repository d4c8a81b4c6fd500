package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/brandbeam/brandbeam/internal/gateway"
	"github.com/brandbeam/brandbeam/internal/invoker"
	"github.com/brandbeam/brandbeam/internal/normalize"
	"github.com/brandbeam/brandbeam/internal/quota"
	"github.com/brandbeam/brandbeam/internal/registry"
	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// fakeBackend counts invocations and replays a canned response.
type fakeBackend struct {
	calls    int
	response *invoker.Response
	err      error

	lastPrompt string
}

func (f *fakeBackend) Invoke(ctx context.Context, contract *registry.Contract, payload map[string]any) (*invoker.Response, error) {
	f.calls++
	f.lastPrompt = contract.BuildPrompt(payload)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func responseWithText(text string, totalTokens int64) *invoker.Response {
	var resp invoker.Response
	raw := fmt.Sprintf(`{
		"candidates": [{"content": {"parts": [{"text": %q}]}}],
		"usageMetadata": {"totalTokenCount": %d}
	}`, text, totalTokens)
	json.Unmarshal([]byte(raw), &resp)
	return &resp
}

// countingLedger wraps a StoreLedger to observe check/charge traffic.
type countingLedger struct {
	quota.Ledger
	checks  int
	charges int
}

func (l *countingLedger) CheckAndReserve(ctx context.Context, p *models.Principal) error {
	l.checks++
	return l.Ledger.CheckAndReserve(ctx, p)
}

func (l *countingLedger) Charge(ctx context.Context, p *models.Principal, amount int64) error {
	l.charges++
	return l.Ledger.Charge(ctx, p, amount)
}

type fixture struct {
	gw      *gateway.Gateway
	store   *store.MemoryStore
	ledger  *countingLedger
	backend *fakeBackend
}

func newFixture(t *testing.T, backend *fakeBackend) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	ceilings := quota.Ceilings{
		models.TierStarter: 1000,
		models.TierGrowth:  5000,
		models.TierScale:   20000,
	}
	ledger := &countingLedger{Ledger: quota.NewStoreLedger(s, ceilings)}

	reg, err := registry.New()
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}

	return &fixture{
		gw:      gateway.New(reg, ledger, backend, 500),
		store:   s,
		ledger:  ledger,
		backend: backend,
	}
}

func (f *fixture) principal(t *testing.T, tier models.Tier, used int64) *models.Principal {
	t.Helper()
	p := &models.Principal{ID: "p1", Tier: tier, TokensUsed: used}
	if err := f.store.CreatePrincipal(context.Background(), p, "tok"); err != nil {
		t.Fatalf("CreatePrincipal() error = %v", err)
	}
	return p
}

func TestExecute_Success(t *testing.T) {
	backend := &fakeBackend{response: responseWithText("Ten taglines.", 340)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierGrowth, 0)

	result, err := f.gw.Execute(context.Background(), p, "tagline_generator",
		map[string]any{"business": "Acme\x00 Coffee"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Kind != models.ResultText || result.Text != "Ten taglines." {
		t.Errorf("result = %+v, want text passthrough", result)
	}

	// Charged the backend-reported amount, exactly once.
	if f.ledger.charges != 1 {
		t.Errorf("charges = %d, want 1", f.ledger.charges)
	}
	if p.TokensUsed != 340 {
		t.Errorf("TokensUsed = %d, want 340", p.TokensUsed)
	}

	// Payload was sanitized before the prompt builder saw it.
	if backend.lastPrompt == "" || backend.calls != 1 {
		t.Fatalf("backend calls = %d", backend.calls)
	}
	for _, r := range backend.lastPrompt {
		if r < 0x20 && r != '\n' && r != '\t' {
			t.Errorf("prompt contains control character %U", r)
		}
	}
}

func TestExecute_SanitizedPromptContent(t *testing.T) {
	backend := &fakeBackend{response: responseWithText("ok", 10)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierGrowth, 0)

	_, err := f.gw.Execute(context.Background(), p, "review_responder", map[string]any{
		"business": "Acme\x07Coffee",
		"review":   "Great\x00 beans",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if want := "AcmeCoffee"; !strings.Contains(backend.lastPrompt, want) {
		t.Errorf("prompt = %q, want sanitized business %q", backend.lastPrompt, want)
	}
}

func TestExecute_FallbackCharge(t *testing.T) {
	// Backend reports no usage: the fixed estimate applies.
	backend := &fakeBackend{response: responseWithText("ok", 0)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierGrowth, 0)

	if _, err := f.gw.Execute(context.Background(), p, "tagline_generator", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if p.TokensUsed != 500 {
		t.Errorf("TokensUsed = %d, want fallback 500", p.TokensUsed)
	}
}

func TestExecute_UnknownAgent(t *testing.T) {
	backend := &fakeBackend{response: responseWithText("ok", 10)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierStarter, 0)

	_, err := f.gw.Execute(context.Background(), p, "does_not_exist", nil)
	if !errors.Is(err, registry.ErrUnknownAgent) {
		t.Fatalf("Execute() error = %v, want ErrUnknownAgent", err)
	}

	// Neither the backend nor the quota ledger is touched.
	if backend.calls != 0 {
		t.Errorf("backend calls = %d, want 0", backend.calls)
	}
	if f.ledger.checks != 0 || f.ledger.charges != 0 {
		t.Errorf("ledger touched: checks=%d charges=%d, want 0/0", f.ledger.checks, f.ledger.charges)
	}
}

func TestExecute_QuotaExceeded(t *testing.T) {
	backend := &fakeBackend{response: responseWithText("ok", 10)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierStarter, 1000) // at ceiling

	_, err := f.gw.Execute(context.Background(), p, "tagline_generator", nil)
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("Execute() error = %v, want ErrQuotaExceeded", err)
	}

	// No backend cost, no charge, counter unchanged.
	if backend.calls != 0 {
		t.Errorf("backend calls = %d, want 0", backend.calls)
	}
	got, _ := f.store.GetPrincipal(context.Background(), "p1")
	if got.TokensUsed != 1000 {
		t.Errorf("TokensUsed = %d, want unchanged 1000", got.TokensUsed)
	}
}

func TestExecute_InvocationFailureChargesNothing(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: backend status 503", invoker.ErrInvocation)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierGrowth, 0)

	_, err := f.gw.Execute(context.Background(), p, "tagline_generator", nil)
	if !errors.Is(err, invoker.ErrInvocation) {
		t.Fatalf("Execute() error = %v, want ErrInvocation", err)
	}
	if f.ledger.charges != 0 {
		t.Errorf("charges = %d, want 0 for failed invocation", f.ledger.charges)
	}
	got, _ := f.store.GetPrincipal(context.Background(), "p1")
	if got.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d, want 0", got.TokensUsed)
	}
}

func TestExecute_NormalizationFailureStillCharges(t *testing.T) {
	// Invocation succeeded, so the backend cost was real and is charged
	// even though the structured output is malformed.
	backend := &fakeBackend{response: responseWithText("not json", 220)}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierGrowth, 0)

	_, err := f.gw.Execute(context.Background(), p, "landing_page_critique",
		map[string]any{"copy": "Buy now."})
	if !errors.Is(err, normalize.ErrNormalization) {
		t.Fatalf("Execute() error = %v, want ErrNormalization", err)
	}
	if f.ledger.charges != 1 {
		t.Errorf("charges = %d, want 1", f.ledger.charges)
	}
	got, _ := f.store.GetPrincipal(context.Background(), "p1")
	if got.TokensUsed != 220 {
		t.Errorf("TokensUsed = %d, want 220", got.TokensUsed)
	}
}

func TestExecute_GroundedResult(t *testing.T) {
	var resp invoker.Response
	raw := `{
		"candidates": [{
			"content": {"parts": [{"text": "Scan complete."}]},
			"groundingMetadata": {"groundingChunks": [
				{"web": {"title": "Industry Report", "uri": "https://example.com"}}
			]}
		}],
		"usageMetadata": {"totalTokenCount": 900}
	}`
	json.Unmarshal([]byte(raw), &resp)

	backend := &fakeBackend{response: &resp}
	f := newFixture(t, backend)
	p := f.principal(t, models.TierScale, 0)

	result, err := f.gw.Execute(context.Background(), p, "competitor_scan",
		map[string]any{"business": "Acme", "industry": "coffee"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Kind != models.ResultGrounded {
		t.Fatalf("Kind = %q, want grounded", result.Kind)
	}
	if len(result.Grounded.Citations) != 1 || result.Grounded.Citations[0].Source != "Industry Report" {
		t.Errorf("citations = %+v", result.Grounded.Citations)
	}
	if p.TokensUsed != 900 {
		t.Errorf("TokensUsed = %d, want 900", p.TokensUsed)
	}
}
