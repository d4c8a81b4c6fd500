// Package registry holds the static table of agent contracts the gateway
// can execute. Each contract pairs a model selector with a pure prompt
// builder and, optionally, an output schema or grounding tools.
//
// Adding an agent is a pure data-table edit in contracts.go; nothing
// outside the table may special-case an agent name. The registry is
// populated once at startup and read-only afterwards, so lookups are safe
// for unsynchronized concurrent use.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownAgent is returned by Resolve for names not in the table.
var ErrUnknownAgent = errors.New("unknown agent")

// PromptBuilder renders the prompt for one agent from a sanitized payload.
// Builders must be deterministic and must not mutate the payload.
type PromptBuilder func(payload map[string]any) string

// Grounding tool identifiers understood by the generation backend.
const (
	ToolWebSearch   = "google_search"
	ToolPlaceSearch = "google_maps"
)

// Contract is one supported agent operation.
type Contract struct {
	// Name is the unique lookup key.
	Name string

	// Model selects which generative model/version to invoke.
	Model string

	// BuildPrompt renders the prompt text from the sanitized payload.
	BuildPrompt PromptBuilder

	// OutputSchema, when non-nil, is the JSON schema the backend is asked
	// to decode against. Nil means unstructured text output.
	OutputSchema json.RawMessage

	// Schema is the compiled form of OutputSchema, used by the normalizer
	// to validate parsed structured output. Nil iff OutputSchema is nil.
	Schema *jsonschema.Schema

	// GroundingTools lists retrieval capabilities the backend may invoke.
	// Non-empty grounding changes the normalized result shape.
	GroundingTools []string
}

// Grounded reports whether the contract declares any grounding tools.
func (c *Contract) Grounded() bool { return len(c.GroundingTools) > 0 }

// Registry is the read-only name → contract lookup.
type Registry struct {
	contracts map[string]*Contract
}

// New builds the registry from the static contract table, compiling each
// output schema. A malformed schema is a programming error and fails startup.
func New() (*Registry, error) {
	r := &Registry{contracts: make(map[string]*Contract, len(contractTable))}
	for i := range contractTable {
		c := &contractTable[i]
		if _, dup := r.contracts[c.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate agent %q", c.Name)
		}
		if c.OutputSchema != nil {
			schema, err := compileSchema(c.Name, c.OutputSchema)
			if err != nil {
				return nil, fmt.Errorf("registry: agent %q: %w", c.Name, err)
			}
			c.Schema = schema
		}
		r.contracts[c.Name] = c
	}
	return r, nil
}

// Resolve looks up a contract by name. Pure lookup, no side effects.
func (r *Registry) Resolve(name string) (*Contract, error) {
	c, ok := r.contracts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return c, nil
}

// Names returns the registered agent names, for discovery endpoints.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	return names
}

func compileSchema(name string, doc json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, strings.NewReader(string(doc))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
