package macro

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ReservedNamespaces are names templates already use for rows, batches and
// builtins. A macro file may not shadow them.
var ReservedNamespaces = []string{
	"row", "batch", "loop",
	"index", "row_index", "batch_index", "start_index", "end_index", "total", "size",
	"uuid", "now", "true", "false", "none",
}

// RegistryError is returned when a namespace cannot be registered.
type RegistryError struct {
	Namespace string
	Message   string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("macro namespace %q: %s", e.Namespace, e.Message)
}

// Registry holds loaded macro modules by namespace.
type Registry struct {
	modules map[string]*LoadedModule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*LoadedModule)}
}

// Register adds a module. Reserved and duplicate namespaces are rejected.
func (r *Registry) Register(m *LoadedModule) error {
	if slices.Contains(ReservedNamespaces, m.Namespace) {
		return &RegistryError{Namespace: m.Namespace, Message: "is reserved"}
	}
	if prev, ok := r.modules[m.Namespace]; ok {
		return &RegistryError{Namespace: m.Namespace, Message: "already defined by " + prev.Path}
	}
	r.modules[m.Namespace] = m
	return nil
}

// RegisterAll registers modules in order and stops at the first error.
func (r *Registry) RegisterAll(modules []*LoadedModule) error {
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the module for namespace, or nil.
func (r *Registry) Get(namespace string) *LoadedModule {
	return r.modules[namespace]
}

// Has reports whether namespace is registered.
func (r *Registry) Has(namespace string) bool {
	_, ok := r.modules[namespace]
	return ok
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.modules)
}

// Namespaces returns the registered namespaces, sorted.
func (r *Registry) Namespaces() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToStarlarkDict returns the modules as template globals, one
// starlarkstruct.Module per namespace.
func (r *Registry) ToStarlarkDict() starlark.StringDict {
	dict := make(starlark.StringDict, len(r.modules))
	for name, m := range r.modules {
		dict[name] = &starlarkstruct.Module{Name: name, Members: m.Exports}
	}
	return dict
}

// LoadAndRegister loads dir and registers every module found.
func LoadAndRegister(dir string, opts ...LoaderOption) (*Registry, error) {
	modules, err := NewLoader(dir, opts...).Load()
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	if err := registry.RegisterAll(modules); err != nil {
		return nil, err
	}
	return registry, nil
}

// Globals loads dir and returns its namespaces ready for a template
// environment. An empty dir yields nil.
func Globals(dir string, predeclared starlark.StringDict, logger *slog.Logger) (starlark.StringDict, error) {
	if dir == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	registry, err := LoadAndRegister(dir, WithPredeclared(predeclared), WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Debug("registered macros", "dir", dir, "namespaces", registry.Namespaces())
	return registry.ToStarlarkDict(), nil
}
