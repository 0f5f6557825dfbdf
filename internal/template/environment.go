package template

import (
	"fmt"
	"strings"
	"time"

	starctx "github.com/sherlockq/fill/internal/starlark"
	"go.starlark.net/starlark"
)

// defaultWhitespace mirrors the block handling templates are written against.
var defaultWhitespace = Whitespace{TrimBlocks: true, LStripBlocks: true}

// Environment holds the configuration shared by every template of a run:
// whitespace handling, undefined handling, filters, globals and macros.
// It is built once and passed to whatever renders.
type Environment struct {
	ws      Whitespace
	strict  bool
	clock   func() time.Time
	filters map[string]starlark.Value
	globals starlark.StringDict
	macros  starlark.StringDict

	// keepTrailingNewline keeps the final newline of a template source.
	keepTrailingNewline bool

	ctx *starctx.ExecutionContext
}

// Option configures an Environment.
type Option func(*Environment)

// WithTrimBlocks toggles removal of the first newline after a block tag.
func WithTrimBlocks(on bool) Option {
	return func(e *Environment) { e.ws.TrimBlocks = on }
}

// WithLStripBlocks toggles stripping of indentation before a block tag.
func WithLStripBlocks(on bool) Option {
	return func(e *Environment) { e.ws.LStripBlocks = on }
}

// WithKeepTrailingNewline controls whether a single trailing newline of a
// template source is kept. It is dropped by default.
func WithKeepTrailingNewline(on bool) Option {
	return func(e *Environment) { e.keepTrailingNewline = on }
}

// WithStrict makes undefined values render errors.
func WithStrict(on bool) Option {
	return func(e *Environment) { e.strict = on }
}

// WithFilter registers a custom filter. The filtered value is passed as the
// first argument.
func WithFilter(name string, fn starlark.Callable) Option {
	return func(e *Environment) { e.filters[name] = fn }
}

// WithGlobals adds values visible to every template.
func WithGlobals(globals starlark.StringDict) Option {
	return func(e *Environment) {
		for k, v := range globals {
			e.globals[k] = v
		}
	}
}

// WithMacros adds macro namespaces visible to every template.
func WithMacros(macros starlark.StringDict) Option {
	return func(e *Environment) {
		for k, v := range macros {
			e.macros[k] = v
		}
	}
}

// WithClock sets the time source of now().
func WithClock(clock func() time.Time) Option {
	return func(e *Environment) { e.clock = clock }
}

// NewEnvironment creates an environment with trim_blocks and lstrip_blocks
// enabled and lenient undefined handling, then applies opts.
func NewEnvironment(opts ...Option) (*Environment, error) {
	e := &Environment{
		ws:      defaultWhitespace,
		filters: make(map[string]starlark.Value),
		globals: make(starlark.StringDict),
		macros:  make(starlark.StringDict),
	}
	for _, opt := range opts {
		opt(e)
	}

	builtins := Builtins(e.clock)
	for name, fn := range e.filters {
		builtins[FilterPrefix+name] = fn
	}
	for name, v := range e.globals {
		builtins[name] = v
	}

	e.ctx = starctx.NewContext(builtins, starctx.WithStrict(e.strict))
	if len(e.macros) > 0 {
		if err := e.ctx.AddMacros(e.macros); err != nil {
			return nil, fmt.Errorf("failed to register macros: %w", err)
		}
	}

	return e, nil
}

// Context returns the execution context backing the environment.
func (e *Environment) Context() *starctx.ExecutionContext {
	return e.ctx
}

// HasFilter reports whether name can be used as a filter.
func (e *Environment) HasFilter(name string) bool {
	if _, ok := e.filters[name]; ok {
		return true
	}
	return IsBuiltinFilter(name)
}

// Parse parses a template using the environment's whitespace handling and filters.
func (e *Environment) Parse(input, file string) (*Template, error) {
	if !e.keepTrailingNewline {
		input = dropTrailingNewline(input)
	}
	tmpl, err := parse(input, file, e.ws, e.HasFilter)
	if err != nil {
		return nil, err
	}
	tmpl.env = e
	return tmpl, nil
}

// dropTrailingNewline removes one final "\n" or "\r\n".
func dropTrailingNewline(s string) string {
	if s, ok := strings.CutSuffix(s, "\n"); ok {
		return strings.TrimSuffix(s, "\r")
	}
	return s
}

// Render renders a parsed template with data.
func (e *Environment) Render(tmpl *Template, data map[string]any) (string, error) {
	return Render(tmpl, e.ctx, data)
}

// RenderString parses and renders input in one step.
func (e *Environment) RenderString(input, file string, data map[string]any) (string, error) {
	tmpl, err := e.Parse(input, file)
	if err != nil {
		return "", err
	}
	return e.Render(tmpl, data)
}

// Render renders the template with the environment it was parsed by.
func (t *Template) Render(data map[string]any) (string, error) {
	if t.env == nil {
		return "", fmt.Errorf("template %s was not parsed by an environment", t.File)
	}
	return t.env.Render(t, data)
}
