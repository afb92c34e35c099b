package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry holds one Adapter per provider name plus an optional JSON
// Schema each provider's execution_permissions/options must validate
// against before an invocation starts.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	schemas  map[string]*jsonschema.Schema
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}, schemas: map[string]*jsonschema.Schema{}}
}

// Register adds an adapter under name, compiling an optional options
// schema (a JSON Schema document as a Go map, matching the pack's
// provider-options idiom).
func (r *Registry) Register(name string, a Adapter, optionsSchema map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
	if optionsSchema == nil {
		return nil
	}
	schema, err := compileSchema(optionsSchema)
	if err != nil {
		return fmt.Errorf("compile options schema for provider %s: %w", name, err)
	}
	r.schemas[name] = schema
	return nil
}

// Get returns the adapter registered under name, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// ValidateOptions checks optionsJSON against the provider's registered
// schema, if any. An unregistered or schema-less provider passes
// trivially.
func (r *Registry) ValidateOptions(name, optionsJSON string) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema == nil {
		return nil
	}
	if strings.TrimSpace(optionsJSON) == "" {
		optionsJSON = "{}"
	}
	var v any
	if err := json.Unmarshal([]byte(optionsJSON), &v); err != nil {
		return NewError(ErrInvalidOptions, "invalid_options", "execution_permissions is not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return NewError(ErrInvalidOptions, "invalid_options", "execution_permissions failed schema validation", err)
	}
	return nil
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
