// Package invoker issues generation calls to the backend with a resolved
// agent contract. It builds the prompt, attaches the contract's decoding
// constraints and grounding tools, and returns the raw backend response
// untouched for the normalizer to interpret.
//
// The invoker never retries: generative calls are expensive and
// non-idempotent in content, so retry policy belongs to the caller of the
// gateway.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brandbeam/brandbeam/internal/config"
	"github.com/brandbeam/brandbeam/internal/registry"
)

// ErrInvocation wraps every failure mode of a backend call: transport
// errors, non-200 statuses, and undecodable bodies.
var ErrInvocation = errors.New("generation invocation failed")

// Invoker calls the generative backend over HTTP.
type Invoker struct {
	endpoint        string
	apiKey          string
	maxOutputTokens int
	client          *http.Client
}

// New creates an invoker from backend configuration.
func New(cfg config.BackendConfig) *Invoker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Invoker{
		endpoint:        cfg.Endpoint,
		apiKey:          cfg.APIKey,
		maxOutputTokens: cfg.MaxOutputTokens,
		client:          &http.Client{Timeout: timeout},
	}
}

// ── Wire types ──────────────────────────────────────────────

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []tool            `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
	GoogleMaps   *struct{} `json:"google_maps,omitempty"`
}

// Response is the raw backend response. The invoker does not interpret it;
// grounding metadata and usage figures pass through to the normalizer and
// the quota ledger.
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

type Candidate struct {
	Content           content            `json:"content"`
	FinishReason      string             `json:"finishReason,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// GroundingMetadata carries the retrieval chunks the backend consulted.
type GroundingMetadata struct {
	GroundingChunks []GroundingChunk `json:"groundingChunks"`
}

// GroundingChunk is one retrieval source. Exactly one of the members is
// set depending on which tool produced it.
type GroundingChunk struct {
	Web  *WebSource  `json:"web,omitempty"`
	Maps *MapsSource `json:"maps,omitempty"`
}

type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type MapsSource struct {
	URI   string `json:"uri,omitempty"`
	Title string `json:"title"`
	Text  string `json:"text,omitempty"`
}

// Text concatenates the text parts of the first candidate.
func (r *Response) Text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var buf bytes.Buffer
	for _, p := range r.Candidates[0].Content.Parts {
		buf.WriteString(p.Text)
	}
	return buf.String()
}

// UsageMetadata is the backend-reported token accounting.
type UsageMetadata struct {
	PromptTokenCount     int64 `json:"promptTokenCount"`
	CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	TotalTokenCount      int64 `json:"totalTokenCount"`
}

// TotalTokens returns the backend-reported total token count, 0 if absent.
func (r *Response) TotalTokens() int64 {
	if r.UsageMetadata == nil {
		return 0
	}
	return r.UsageMetadata.TotalTokenCount
}

// ── Invocation ──────────────────────────────────────────────

// Invoke builds the prompt from the contract and sanitized payload, calls
// the backend, and returns its raw response.
func (inv *Invoker) Invoke(ctx context.Context, contract *registry.Contract, payload map[string]any) (*Response, error) {
	prompt := contract.BuildPrompt(payload)

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			MaxOutputTokens: inv.maxOutputTokens,
		},
	}
	if contract.OutputSchema != nil {
		req.GenerationConfig.ResponseMIMEType = "application/json"
		req.GenerationConfig.ResponseSchema = contract.OutputSchema
	}
	for _, name := range contract.GroundingTools {
		switch name {
		case registry.ToolWebSearch:
			req.Tools = append(req.Tools, tool{GoogleSearch: &struct{}{}})
		case registry.ToolPlaceSearch:
			req.Tools = append(req.Tools, tool{GoogleMaps: &struct{}{}})
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrInvocation, err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", inv.endpoint, contract.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrInvocation, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if inv.apiKey != "" {
		httpReq.Header.Set("x-goog-api-key", inv.apiKey)
	}

	httpResp, err := inv.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: transport: %w", ErrInvocation, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("%w: backend status %d: %s", ErrInvocation, httpResp.StatusCode, string(respBody))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrInvocation, err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: backend returned no candidates", ErrInvocation)
	}
	return &resp, nil
}
