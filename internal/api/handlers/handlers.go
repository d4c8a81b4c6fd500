// Package handlers implements the HTTP surface of the Brandbeam gateway.
// All agent invocations flow through one generic handler; per-agent
// behavior lives entirely in the registry's contract table.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brandbeam/brandbeam/internal/api/middleware"
	"github.com/brandbeam/brandbeam/internal/gateway"
	"github.com/brandbeam/brandbeam/internal/quota"
	"github.com/brandbeam/brandbeam/internal/registry"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Gateway *gateway.Gateway
}

// New creates a Handlers instance.
func New(gw *gateway.Gateway) *Handlers {
	return &Handlers{Gateway: gw}
}

// invokeRequest is the body of POST /api/v1/agents/{agentName}/invoke.
type invokeRequest struct {
	Payload map[string]any `json:"payload"`
}

// InvokeAgent executes one agent invocation for the authenticated principal.
//
// Responses:
//
//	200 {"data": <result inner value>}
//	404 unknown agent
//	402 quota exceeded (human-readable reason)
//	500 invocation / normalization failure (generic message)
func (h *Handlers) InvokeAgent(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	agentName := chi.URLParam(r, "agentName")

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.Gateway.Execute(r.Context(), principal, agentName, req.Payload)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"data": result.Inner()})
}

// ListAgents returns the registered agent names with their result kinds,
// for the UI collaborator's discovery.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	reg := h.Gateway.Registry()

	type agentInfo struct {
		Name string            `json:"name"`
		Kind models.ResultKind `json:"result_kind"`
	}

	agents := make([]agentInfo, 0)
	for _, name := range reg.Names() {
		contract, err := reg.Resolve(name)
		if err != nil {
			continue
		}
		kind := models.ResultText
		switch {
		case contract.Grounded():
			kind = models.ResultGrounded
		case contract.OutputSchema != nil:
			kind = models.ResultStructured
		}
		agents = append(agents, agentInfo{Name: name, Kind: kind})
	}

	respondJSON(w, http.StatusOK, agents)
}

// GetUsage reports the authenticated principal's consumption.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	ceiling := h.Gateway.Ledger().Ceiling(principal.Tier)
	remaining := ceiling - principal.TokensUsed
	if remaining < 0 {
		remaining = 0
	}

	respondJSON(w, http.StatusOK, models.UsageSummary{
		PrincipalID: principal.ID,
		Tier:        principal.Tier,
		TokensUsed:  principal.TokensUsed,
		Ceiling:     ceiling,
		Remaining:   remaining,
	})
}

// respondGatewayError maps the gateway error taxonomy onto HTTP statuses.
// Backend failures stay opaque to callers.
func (h *Handlers) respondGatewayError(w http.ResponseWriter, err error) {
	kind := gateway.ErrorStatus(err)
	switch {
	case errors.Is(err, registry.ErrUnknownAgent):
		respondErrorKind(w, http.StatusNotFound, kind, "Unknown agent")
	case errors.Is(err, quota.ErrQuotaExceeded):
		respondErrorKind(w, http.StatusPaymentRequired, kind, "Monthly generation quota exceeded. Upgrade your plan to continue.")
	default:
		respondErrorKind(w, http.StatusInternalServerError, kind, "Generation failed. Please try again.")
	}
}

func respondErrorKind(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]string{"error": kind, "message": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
