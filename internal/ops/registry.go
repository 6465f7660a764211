// Package ops is the operation catalog: every mutation a session can apply,
// with its parameter decoding, precondition checks, structural edit and
// inverse capture, plus a registry that replays {kind, params} events.
package ops

import (
	"fmt"
	"sort"
	"sync"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
	"boardedit/internal/logging"
)

// Category classifies operations for listing.
type Category string

const (
	CategoryPlacement  Category = "placement"
	CategoryProperties Category = "properties"
	CategoryNets       Category = "nets"
	CategoryRouting    Category = "routing"
	CategoryZones      Category = "zones"
	CategoryBoard      Category = "board"
)

// Property describes a single parameter.
type Property struct {
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Schema lists the parameters of an operation.
type Schema struct {
	Required   []string            `yaml:"required" json:"required"`
	Properties map[string]Property `yaml:"properties" json:"properties"`
}

// BuildFunc decodes parameters into a Binder. It does not look at any
// document; references are resolved when the Binder runs.
type BuildFunc func(args map[string]any) (document.Binder, error)

// Spec defines one operation kind.
type Spec struct {
	Name        string
	Description string
	Category    Category
	Build       BuildFunc
	Schema      Schema
}

// Validate checks if the spec definition is valid.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return ErrOpNameEmpty
	}
	if s.Build == nil {
		return ErrBuildNil
	}
	return nil
}

// Registry maps operation kinds to their specs.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu         sync.RWMutex
	specs      map[string]*Spec
	byCategory map[Category][]*Spec
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:      make(map[string]*Spec),
		byCategory: make(map[Category][]*Spec),
	}
}

// Register adds a spec to the registry.
func (r *Registry) Register(spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrOpAlreadyRegistered, spec.Name)
	}
	r.specs[spec.Name] = spec
	r.byCategory[spec.Category] = append(r.byCategory[spec.Category], spec)

	logging.OpsDebug("Registered operation: %s (category=%s)", spec.Name, spec.Category)
	return nil
}

// MustRegister registers a spec and panics on error.
func (r *Registry) MustRegister(spec *Spec) {
	if err := r.Register(spec); err != nil {
		panic(fmt.Sprintf("failed to register operation %s: %v", spec.Name, err))
	}
}

// Get returns a spec by name, or nil if not found.
func (r *Registry) Get(name string) *Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[name]
}

// Has returns true if a spec with the given name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// ByCategory returns the specs in a category sorted by name.
func (r *Registry) ByCategory(category Category) []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := append([]*Spec(nil), r.byCategory[category]...)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Names returns all registered kinds, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered specs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// Bind decodes args for kind and returns the Binder to run against a
// document. Unknown kinds and bad parameters are validation errors.
func (r *Registry) Bind(kind string, args map[string]any) (document.Binder, error) {
	spec := r.Get(kind)
	if spec == nil {
		e := apperr.Validation(kind, "kind", "unknown operation %q", kind)
		e.Err = ErrOpNotFound
		return nil, e
	}
	for _, required := range spec.Schema.Required {
		if v, ok := args[required]; !ok || v == nil {
			e := apperr.Validation(kind, required, "missing required argument %q", required)
			e.Err = ErrMissingRequiredArg
			return nil, e
		}
	}
	b, err := spec.Build(args)
	if err != nil {
		return nil, err
	}
	logging.OpsDebug("bound %s", kind)
	return b, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry holding the full catalog.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewCatalog()
	})
	return defaultRegistry
}

// NewCatalog returns a fresh registry with every built-in operation.
func NewCatalog() *Registry {
	r := NewRegistry()
	for _, spec := range catalog() {
		r.MustRegister(spec)
	}
	return r
}
