package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Built-in schema names.
const (
	SchemaNode        = "node"
	SchemaOperator    = "operator"
	SchemaDynamicNode = "dynamic_node"
	SchemaComponent   = "component"
	SchemaDeployment  = "deployment"
	SchemaDataflow    = "dataflow"
)

// SchemaRegistry manages CUE schemas for validation.
// A cue.Context is not safe for concurrent use, so every operation holds the lock.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.Mutex
}

var (
	defaultRegistry     *SchemaRegistry
	defaultRegistryOnce sync.Once
)

// DefaultSchemas returns the process-wide registry holding the built-in schemas.
func DefaultSchemas() *SchemaRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewSchemaRegistry()
	})
	return defaultRegistry
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas. The sources are constants,
// so a compile failure is a programming error.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	builtins := map[string]string{
		SchemaNode:        "#Node",
		SchemaOperator:    "#Operator",
		SchemaDynamicNode: "#DynamicNode",
		SchemaComponent:   "#Component",
		SchemaDeployment:  "#Deployment",
		SchemaDataflow:    "#Dataflow",
	}
	for name, def := range builtins {
		if err := sr.RegisterSchema(name, builtinDefinitions+"\n"+def+"\n"); err != nil {
			panic(fmt.Sprintf("config: built-in schema %s: %v", name, err))
		}
	}
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate checks data against a named schema. Data is typically the generic
// form of a decoded YAML record (maps, slices and scalars).
func (sr *SchemaRegistry) Validate(schemaName string, data interface{}) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", formatCUEError(err))
	}

	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// formatCUEError flattens a CUE error list into one line.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}

	msgs := make([]string, 0, len(errs))
	seen := make(map[string]bool)
	for _, e := range errs {
		msg := strings.TrimSpace(cueerrors.Details(e, nil))
		msg = strings.ReplaceAll(msg, "\n", " ")
		if seen[msg] {
			continue
		}
		seen[msg] = true
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// Built-in schema definitions. Definitions are closed, so any field not listed
// here makes a record fail to match.

const builtinDefinitions = `
#Operator: {
	build?:       null | string
	description?: null | string
	python?:      null | string
	env?:         null | {...}
	inputs?:      null | {...}
	outputs?:     null | [...string]
	args?:        null | string | [...string]
}

#Node: {
	id:        string & !=""
	path?:     null | string
	env?:      null | {...}
	name?:     null | string
	build?:    null | string
	operator?: null | #Operator
	inputs?:   null | {...}
	outputs?:  null | [...string]
	args?:     null | string | [...string]
}

#DynamicNode: {
	id:    string & !=""
	path:  string & !=""
	kind?: "dynamic"
}

#Component: {
	id:    string & !=""
	path:  string & !=""
	vars?: null | {...}
}

#Deployment: {
	vars?:       null | {...}
	nodes?:      null | [...]
	components?: null | [...#Component]
}

// Referenced dataflow documents may carry keys this tool does not use.
#Dataflow: {
	nodes?: null | [...]
	...
}
`
