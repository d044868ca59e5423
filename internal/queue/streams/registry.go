package streams

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaNotFound is returned when no schema matches an event type and version.
var ErrSchemaNotFound = errors.New("no schema registered")

type schemaKey struct {
	eventType string
	version   string
}

// SchemaRegistry holds compiled payload schemas for mirrored events.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[schemaKey]*jsonschema.Schema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[schemaKey]*jsonschema.Schema)}
}

// Register compiles def and replaces any schema already stored under the same key.
func (r *SchemaRegistry) Register(def Definition) error {
	if def.EventType == "" || def.Version == "" {
		return fmt.Errorf("definition needs event type and version")
	}
	if len(def.Schema) == 0 {
		return fmt.Errorf("definition %s/%s has no schema", def.EventType, def.Version)
	}

	url := fmt.Sprintf("research://%s/%s.json", def.EventType, def.Version)
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(def.Schema)); err != nil {
		return fmt.Errorf("load schema %s: %w", url, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", url, err)
	}

	r.mu.Lock()
	r.schemas[schemaKey{def.EventType, def.Version}] = compiled
	r.mu.Unlock()
	return nil
}

// Versions lists the payload versions registered for eventType in sorted order.
func (r *SchemaRegistry) Versions(eventType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k := range r.schemas {
		if k.eventType == eventType {
			out = append(out, k.version)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks payload against the schema stored for eventType and version.
func (r *SchemaRegistry) Validate(eventType, version string, payload []byte) error {
	r.mu.RLock()
	schema, ok := r.schemas[schemaKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for event %q version %q", ErrSchemaNotFound, eventType, version)
	}
	if len(payload) == 0 {
		return fmt.Errorf("payload for %s is empty", eventType)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s payload validation failed: %w", eventType, err)
	}
	return nil
}
