package starlark

import (
	"fmt"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ExecutionContext provides all globals and state for Starlark expression evaluation.
// A context is built once per run and shared by every render; per-render data is
// passed as locals.
type ExecutionContext struct {
	// Macros contains loaded macro namespaces
	// Each key is a namespace (e.g., "fmt") with a struct of functions
	Macros starlark.StringDict

	// Strict makes references to unknown names an error instead of Undefined.
	Strict bool

	// builtins are the predeclared values (filters, uuid, now, true/false/none)
	builtins starlark.StringDict

	// globals is the combined set of all globals for execution
	globals starlark.StringDict

	// mu protects globals during initialization
	mu sync.RWMutex
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithMacros sets the macros for the context.
func WithMacros(macros starlark.StringDict) ContextOption {
	return func(ctx *ExecutionContext) {
		for name, m := range macros {
			ctx.Macros[name] = m
		}
	}
}

// WithStrict toggles strict handling of undefined names.
func WithStrict(strict bool) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.Strict = strict
	}
}

// NewContext creates a new execution context over the given builtins.
func NewContext(builtins starlark.StringDict, opts ...ContextOption) *ExecutionContext {
	ctx := &ExecutionContext{
		Macros:   make(starlark.StringDict),
		builtins: builtins,
	}

	for _, opt := range opts {
		opt(ctx)
	}

	ctx.buildGlobals()
	return ctx
}

// buildGlobals constructs the combined globals dict.
func (ctx *ExecutionContext) buildGlobals() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	ctx.globals = make(starlark.StringDict, len(ctx.builtins)+len(ctx.Macros))
	for name, v := range ctx.builtins {
		ctx.globals[name] = v
	}

	// Add macros
	for name, macro := range ctx.Macros {
		ctx.globals[name] = macro
	}
}

// Globals returns the combined globals dictionary for Starlark execution.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.globals
}

// AddMacros adds macro namespaces to the context.
// Returns error if a macro name conflicts with a builtin.
func (ctx *ExecutionContext) AddMacros(macros starlark.StringDict) error {
	for name := range macros {
		if _, ok := ctx.builtins[name]; ok {
			return fmt.Errorf("macro namespace %q conflicts with builtin", name)
		}
	}

	ctx.mu.Lock()
	for name, macro := range macros {
		ctx.Macros[name] = macro
	}
	ctx.mu.Unlock()

	ctx.buildGlobals()
	return nil
}

// EvalExpr evaluates a single Starlark expression and returns the result.
func (ctx *ExecutionContext) EvalExpr(expr string, filename string, line int) (starlark.Value, error) {
	return ctx.EvalExprWithLocals(expr, filename, line, nil)
}

// EvalExprWithLocals evaluates a Starlark expression with additional local variables.
// Locals carry the render data and any loop or set variables in scope.
func (ctx *ExecutionContext) EvalExprWithLocals(expr string, filename string, line int, locals starlark.StringDict) (starlark.Value, error) {
	thread := ctx.newThread(filename)

	// Combine globals with locals (locals take precedence)
	globals := ctx.Globals()
	env := make(starlark.StringDict, len(globals)+len(locals))
	for k, v := range globals {
		env[k] = v
	}
	for k, v := range locals {
		env[k] = v
	}

	if err := declareUndefined(expr, filename, env, ctx.Strict); err != nil {
		return nil, &EvalError{File: filename, Line: line, Expr: expr, Message: err.Error()}
	}

	result, err := starlark.Eval(thread, filename, expr, env) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		return nil, &EvalError{
			File:    filename,
			Line:    line,
			Expr:    expr,
			Message: err.Error(),
		}
	}

	return result, nil
}

// EvalExprString evaluates a Starlark expression and returns the string result.
func (ctx *ExecutionContext) EvalExprString(expr string, filename string, line int) (string, error) {
	result, err := ctx.EvalExprWithLocals(expr, filename, line, nil)
	if err != nil {
		return "", err
	}
	return ToString(result), nil
}

// DefinednessCalls are the functions whose bare identifier argument may be
// unknown even in strict mode: x is defined must not fail on a missing x.
var DefinednessCalls = map[string]bool{
	"__test_defined":   true,
	"__test_undefined": true,
}

// declareUndefined binds every free identifier of expr that is not otherwise
// known to Undefined, so a missing variable renders empty instead of failing
// name resolution. In strict mode only the direct identifier arguments of
// DefinednessCalls are bound.
func declareUndefined(expr, filename string, env starlark.StringDict, strict bool) error {
	if strict && !strings.Contains(expr, "__test_") {
		return nil
	}
	parsed, err := syntax.ParseExpr(filename, expr, 0) //nolint:staticcheck // SA1019: will migrate to FileOptions later
	if err != nil {
		return err
	}
	syntax.Walk(parsed, func(n syntax.Node) bool {
		if strict {
			call, ok := n.(*syntax.CallExpr)
			if !ok {
				return true
			}
			fn, ok := call.Fn.(*syntax.Ident)
			if !ok || !DefinednessCalls[fn.Name] || len(call.Args) == 0 {
				return true
			}
			if id, ok := call.Args[0].(*syntax.Ident); ok {
				if _, known := env[id.Name]; !known {
					env[id.Name] = Undefined{Name: id.Name}
				}
			}
			return true
		}
		id, ok := n.(*syntax.Ident)
		if !ok {
			return true
		}
		if _, known := env[id.Name]; known {
			return true
		}
		if _, universal := starlark.Universe[id.Name]; universal {
			return true
		}
		env[id.Name] = Undefined{Name: id.Name}
		return true
	})
	return nil
}

// newThread creates a new Starlark thread for execution.
func (ctx *ExecutionContext) newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, _ string) {
			// Template execution should not print
		},
	}
}

// EvalError represents an error during Starlark expression evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}
