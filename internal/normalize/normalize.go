// Package normalize converts raw backend responses into the gateway's
// canonical result shapes. The shape is dictated by the contract, never by
// the response: grounding tools declared ⇒ grounded, schema declared ⇒
// structured, otherwise plain text.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/brandbeam/brandbeam/internal/invoker"
	"github.com/brandbeam/brandbeam/internal/registry"
	"github.com/brandbeam/brandbeam/pkg/models"
)

// ErrNormalization is returned when structured output stays malformed
// after the single fenced-code fallback.
var ErrNormalization = errors.New("response normalization failed")

// Normalize shapes a raw backend response according to the contract.
func Normalize(contract *registry.Contract, raw *invoker.Response) (*models.NormalizedResult, error) {
	switch {
	case contract.Grounded():
		return normalizeGrounded(raw), nil
	case contract.Schema != nil:
		return normalizeStructured(contract, raw.Text())
	default:
		return &models.NormalizedResult{Kind: models.ResultText, Text: raw.Text()}, nil
	}
}

// normalizeGrounded extracts the free-text answer and the grounding chunks
// in backend order. A grounded contract with no chunks is still valid; the
// citation list is simply empty.
func normalizeGrounded(raw *invoker.Response) *models.NormalizedResult {
	answer := &models.GroundedAnswer{
		Text:      raw.Text(),
		Citations: []models.Citation{},
	}

	if len(raw.Candidates) > 0 && raw.Candidates[0].GroundingMetadata != nil {
		for _, chunk := range raw.Candidates[0].GroundingMetadata.GroundingChunks {
			switch {
			case chunk.Web != nil:
				source := chunk.Web.Title
				if source == "" {
					source = chunk.Web.URI
				}
				answer.Citations = append(answer.Citations, models.Citation{Source: source})
			case chunk.Maps != nil:
				source := chunk.Maps.Title
				if source == "" {
					source = chunk.Maps.URI
				}
				answer.Citations = append(answer.Citations, models.Citation{
					Source:  source,
					Snippet: chunk.Maps.Text,
				})
			}
		}
	}

	return &models.NormalizedResult{Kind: models.ResultGrounded, Grounded: answer}
}

// normalizeStructured parses the response text as JSON matching the
// contract's schema. Backends are not fully reliable at honoring
// "return only JSON", so one bounded fallback is applied: strip fenced-code
// markers and surrounding whitespace, then parse again. A second failure is
// a normalization error; partial structures are never coerced.
func normalizeStructured(contract *registry.Contract, text string) (*models.NormalizedResult, error) {
	value, err := parseJSON(text)
	if err != nil {
		value, err = parseJSON(stripFences(text))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed structured output: %w", ErrNormalization, err)
		}
	}

	if err := contract.Schema.Validate(value); err != nil {
		return nil, fmt.Errorf("%w: schema violation: %w", ErrNormalization, err)
	}

	return &models.NormalizedResult{Kind: models.ResultStructured, Structured: value}, nil
}

func parseJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// stripFences removes a surrounding markdown code fence (with or without a
// language tag) plus any prose outside it. Deterministic single transform:
// keep what sits between the first and last fence markers; if no fences are
// present, return the trimmed input unchanged.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)

	first := strings.Index(trimmed, "```")
	if first < 0 {
		return trimmed
	}
	rest := trimmed[first+3:]
	// Drop a language tag such as "json" directly after the opening fence.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if len(tag) <= 10 && !strings.ContainsAny(tag, "{[\"") {
			rest = rest[nl+1:]
		}
	}
	if last := strings.LastIndex(rest, "```"); last >= 0 {
		rest = rest[:last]
	}
	return strings.TrimSpace(rest)
}
