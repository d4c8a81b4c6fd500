package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brandbeam/brandbeam/internal/api"
	"github.com/brandbeam/brandbeam/internal/api/handlers"
	"github.com/brandbeam/brandbeam/internal/api/middleware"
	"github.com/brandbeam/brandbeam/internal/config"
	"github.com/brandbeam/brandbeam/internal/gateway"
	"github.com/brandbeam/brandbeam/internal/invoker"
	"github.com/brandbeam/brandbeam/internal/quota"
	"github.com/brandbeam/brandbeam/internal/registry"
	"github.com/brandbeam/brandbeam/internal/store"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// stubBackend replays one canned generation response.
type stubBackend struct {
	body string
}

func (b *stubBackend) Invoke(ctx context.Context, contract *registry.Contract, payload map[string]any) (*invoker.Response, error) {
	var resp invoker.Response
	if err := json.Unmarshal([]byte(b.body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

const stubTextBody = `{
	"candidates": [{"content": {"parts": [{"text": "Five sharp taglines."}]}}],
	"usageMetadata": {"totalTokenCount": 120}
}`

// newServer wires the full router around a memory store and stub backend.
func newServer(t *testing.T, backend gateway.Backend) (http.Handler, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	reg, err := registry.New()
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}

	ceilings := quota.Ceilings{
		models.TierStarter: 1000,
		models.TierGrowth:  5000,
		models.TierScale:   20000,
	}
	gw := gateway.New(reg, quota.NewStoreLedger(s, ceilings), backend, 500)

	cfg := &config.Config{Version: "test"}
	router := api.NewRouter(cfg, handlers.New(gw), middleware.NewAuth(s))
	return router, s
}

func seedPrincipal(t *testing.T, s *store.MemoryStore, tier models.Tier, used int64) {
	t.Helper()
	p := &models.Principal{ID: "acct_1", Tier: tier, TokensUsed: used}
	if err := s.CreatePrincipal(context.Background(), p, "tok-1"); err != nil {
		t.Fatalf("CreatePrincipal() error = %v", err)
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestInvokeAgent_Success(t *testing.T) {
	h, s := newServer(t, &stubBackend{body: stubTextBody})
	seedPrincipal(t, s, models.TierGrowth, 0)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/agents/tagline_generator/invoke", "tok-1",
		map[string]any{"payload": map[string]any{"business": "Acme Coffee"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["data"] != "Five sharp taglines." {
		t.Errorf("data = %v, want text result", body["data"])
	}

	// The invocation cost landed on the principal's counter.
	p, _ := s.GetPrincipal(context.Background(), "acct_1")
	if p.TokensUsed != 120 {
		t.Errorf("TokensUsed = %d, want 120", p.TokensUsed)
	}
}

func TestInvokeAgent_StructuredData(t *testing.T) {
	const structuredBody = `{
		"candidates": [{"content": {"parts": [{"text": "{\"score\": 81, \"strengths\": [\"clear CTA\"], \"weaknesses\": [], \"recommendations\": []}"}]}}],
		"usageMetadata": {"totalTokenCount": 210}
	}`
	h, s := newServer(t, &stubBackend{body: structuredBody})
	seedPrincipal(t, s, models.TierScale, 0)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/agents/landing_page_critique/invoke", "tok-1",
		map[string]any{"payload": map[string]any{"copy": "Buy now."}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %v, want object", body["data"])
	}
	if data["score"] != float64(81) {
		t.Errorf("score = %v, want 81", data["score"])
	}
}

func TestInvokeAgent_Unauthenticated(t *testing.T) {
	h, _ := newServer(t, &stubBackend{body: stubTextBody})

	rec := doRequest(t, h, http.MethodPost, "/api/v1/agents/tagline_generator/invoke", "",
		map[string]any{"payload": map[string]any{}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestInvokeAgent_UnknownAgent(t *testing.T) {
	h, s := newServer(t, &stubBackend{body: stubTextBody})
	seedPrincipal(t, s, models.TierGrowth, 0)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/agents/does_not_exist/invoke", "tok-1",
		map[string]any{"payload": map[string]any{}})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "unknown_agent" {
		t.Errorf("error = %v, want unknown_agent", body["error"])
	}

	// Nothing charged for a rejected request.
	p, _ := s.GetPrincipal(context.Background(), "acct_1")
	if p.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d, want 0", p.TokensUsed)
	}
}

func TestInvokeAgent_QuotaExceeded(t *testing.T) {
	h, s := newServer(t, &stubBackend{body: stubTextBody})
	seedPrincipal(t, s, models.TierStarter, 1000)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/agents/tagline_generator/invoke", "tok-1",
		map[string]any{"payload": map[string]any{}})

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "quota_exceeded" {
		t.Errorf("error = %v, want quota_exceeded", body["error"])
	}
}

func TestInvokeAgent_BadBody(t *testing.T) {
	h, s := newServer(t, &stubBackend{body: stubTextBody})
	seedPrincipal(t, s, models.TierGrowth, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/tagline_generator/invoke",
		bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	h, s := newServer(t, &stubBackend{body: stubTextBody})
	seedPrincipal(t, s, models.TierGrowth, 0)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/agents", "tok-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var agents []struct {
		Name string `json:"name"`
		Kind string `json:"result_kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(agents) == 0 {
		t.Fatal("no agents listed")
	}

	kinds := make(map[string]string, len(agents))
	for _, a := range agents {
		kinds[a.Name] = a.Kind
	}
	want := map[string]string{
		"tagline_generator":     "text",
		"landing_page_critique": "structured",
		"competitor_scan":       "grounded",
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("agent %s kind = %q, want %q", name, kinds[name], kind)
		}
	}
}

func TestGetUsage(t *testing.T) {
	h, s := newServer(t, &stubBackend{body: stubTextBody})
	seedPrincipal(t, s, models.TierGrowth, 1200)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/usage", "tok-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var usage models.UsageSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if usage.TokensUsed != 1200 || usage.Ceiling != 5000 || usage.Remaining != 3800 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestHealthAndVersion(t *testing.T) {
	h, _ := newServer(t, &stubBackend{body: stubTextBody})

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/version", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/version status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}
