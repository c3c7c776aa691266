package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("platform", builtinPlatformSchema)
	sr.RegisterSchema("repository", builtinRepositorySchema)
	sr.RegisterSchema("service", builtinServiceSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#" + capitalize(schemaName)))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition", schemaName)
	}

	unified := def.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Built-in schema definitions

const builtinRepositorySchema = `
// Repository schema for production repository declarations
#Repository: {
	// ID is the stable repository identifier referenced by plans
	id: int & >0

	// Name is the repository name on the repository manager
	name: string & =~"^[a-z0-9][a-z0-9._-]*$"

	// Arch is the repository architecture
	arch: string & =~"^[a-z0-9_]+$"

	// Debug marks debuginfo repositories
	debug?: bool

	// URL overrides the published content URL
	url?: string
}
`

const builtinPlatformSchema = `
// Platform schema for target platform declarations
#Platform: {
	// Name is the platform identifier releases reference
	name: string & =~"^[a-z0-9][a-z0-9.-]*$"

	// Distribution is the distribution name used as repository prefix
	distribution: string & =~"^[a-z]+$"

	// Version is the major distribution version
	version: string & =~"^[0-9]+$"

	// Arches are the platform architectures
	arches: [...string] & [_, ...]

	// WeakArches maps strong architectures to piggybacking weak ones
	weak_arches?: {[string]: [...string]}

	// CopyPriorityArches orders copy-source repositories
	copy_priority_arches?: [...string]

	// ModuleFilterPrefixes hides matching sub-packages from module lists
	module_filter_prefixes?: [...string]

	// OracleEnabled switches planning to affinity matching
	oracle_enabled?: bool

	// Repositories are the production repositories
	repositories: [..._] & [_, ...]
}
`

const builtinServiceSchema = `
// Service schema for the release engine service configuration
#Service: {
	// Listen is the API server bind address
	listen?: string

	// Database configures the release store
	database: {
		path: string
		max_open_conns?:            int & >0
		max_idle_conns?:            int & >=0
		conn_max_lifetime_seconds?: int & >=0
	}

	// RepoManager configures the repository manager client
	repo_manager: {
		url:                      string
		username?:                string
		password?:                string
		request_timeout_seconds?: int & >0
		poll_interval_seconds?:   int & >0
	}

	// Oracle configures the package affinity oracle client
	oracle?: {
		url?:             string
		timeout_seconds?: int & >0
	}

	// Policy configures the commit policy gate
	policy?: {
		enabled: bool
		dir?:    string
		watch?:  bool
		mode?:   "advisory" | "enforcing"
	}

	// Hooks configures scripted plan transformation
	hooks?: {
		plan_script?:     string
		timeout_seconds?: int & >0
	}
	...
}
`
