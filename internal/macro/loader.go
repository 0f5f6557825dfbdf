// Package macro loads Starlark macro files for use in templates. Each *.star
// file of the macros directory becomes a namespace named after the file, so
// utils.star defining slug(s) is called as {{ utils.slug(name) }}.
package macro

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Loader executes the .star files of a directory.
type Loader struct {
	dir         string
	predeclared starlark.StringDict
	logger      *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPredeclared makes values such as uuid() and now() visible to macro files.
func WithPredeclared(predeclared starlark.StringDict) LoaderOption {
	return func(l *Loader) { l.predeclared = predeclared }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadedModule is an executed macro file.
type LoadedModule struct {
	// Namespace is the file name without .star.
	Namespace string
	Path      string
	// Exports holds the file's globals, minus names starting with _.
	Exports starlark.StringDict
}

// Files returns the .star files of the directory in name order. A missing
// directory has no files.
func (l *Loader) Files() ([]string, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("macros path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Load executes every .star file of the directory. A missing directory
// yields no modules.
func (l *Loader) Load() ([]*LoadedModule, error) {
	files, err := l.Files()
	if err != nil || len(files) == 0 {
		return nil, err
	}

	modules := make([]*LoadedModule, 0, len(files))
	for _, file := range files {
		module, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded macro file", "namespace", module.Namespace, "exports", len(module.Exports))
		modules = append(modules, module)
	}
	return modules, nil
}

func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a glob of the macros directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name:  "macro:" + namespace,
		Print: func(_ *starlark.Thread, msg string) { l.logger.Debug("macro print", "namespace", namespace, "msg", msg) },
	}

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, path, content, l.predeclared)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	exports := make(starlark.StringDict, len(globals))
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}

	return &LoadedModule{Namespace: namespace, Path: path, Exports: exports}, nil
}

// validateNamespace checks that name can be used as a template identifier.
func validateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		case i == 0:
			return fmt.Errorf("namespace must start with letter or underscore: %s", name)
		default:
			return fmt.Errorf("namespace contains invalid character: %s", name)
		}
	}
	return nil
}

// LoadError is an error loading a macro file.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}
