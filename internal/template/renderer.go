package template

import (
	"strings"

	starctx "github.com/sherlockq/fill/internal/starlark"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// signal reports loop control flow out of a rendered node list.
type signal int

const (
	signalNone signal = iota
	signalContinue
	signalBreak
)

// Render renders a parsed template with the given execution context and data.
// Each call gets its own scope, so a template can be rendered repeatedly.
func Render(tmpl *Template, ctx *starctx.ExecutionContext, data map[string]any) (string, error) {
	root, err := starctx.ContextToStarlark(data)
	if err != nil {
		return "", NewRenderErrorf(Position{File: tmpl.File}, "invalid render data: %v", err)
	}

	r := &renderer{
		ctx:    ctx,
		file:   tmpl.File,
		scopes: []starlark.StringDict{root},
		out:    []*strings.Builder{{}},
	}

	if _, err := r.renderNodes(tmpl.Nodes); err != nil {
		return "", err
	}
	return r.out[0].String(), nil
}

// RenderString parses and renders a template in one step.
func RenderString(input, file string, ctx *starctx.ExecutionContext, data map[string]any) (string, error) {
	tmpl, err := ParseString(input, file)
	if err != nil {
		return "", err
	}
	return Render(tmpl, ctx, data)
}

// renderer holds the state of a single render.
type renderer struct {
	ctx    *starctx.ExecutionContext
	file   string
	scopes []starlark.StringDict // innermost last
	out    []*strings.Builder    // capture stack, innermost last
}

func (r *renderer) write(s string) {
	r.out[len(r.out)-1].WriteString(s)
}

// renderNodes renders nodes in order, stopping early on continue or break.
func (r *renderer) renderNodes(nodes []Node) (signal, error) {
	for _, node := range nodes {
		sig, err := r.renderNode(node)
		if err != nil || sig != signalNone {
			return sig, err
		}
	}
	return signalNone, nil
}

func (r *renderer) renderNode(node Node) (signal, error) {
	switch n := node.(type) {
	case *TextNode:
		r.write(n.Text)

	case *ExprNode:
		v, err := r.eval(n.Expr, n.Pos())
		if err != nil {
			return signalNone, err
		}
		if u, ok := v.(starctx.Undefined); ok && r.ctx.Strict {
			return signalNone, NewRenderErrorf(n.Pos(), "%q is undefined", undefinedName(u, n.Source))
		}
		r.write(starctx.ToString(v))

	case *IfBlock:
		return r.renderIf(n)

	case *ForBlock:
		return signalNone, r.renderFor(n)

	case *SetNode:
		v, err := r.eval(n.Expr, n.Pos())
		if err != nil {
			return signalNone, err
		}
		return signalNone, r.assign(n.Pos(), n.Names, v)

	case *SetBlock:
		r.out = append(r.out, &strings.Builder{})
		sig, err := r.renderNodes(n.Body)
		captured := r.out[len(r.out)-1].String()
		r.out = r.out[:len(r.out)-1]
		if err != nil {
			return signalNone, err
		}
		r.scopes[len(r.scopes)-1][n.Name] = starlark.String(captured)
		return sig, nil

	case *DoNode:
		_, err := r.eval(n.Expr, n.Pos())
		return signalNone, err

	case *ContinueNode:
		return signalContinue, nil

	case *BreakNode:
		return signalBreak, nil

	default:
		return signalNone, NewRenderErrorf(node.Pos(), "unknown node type: %T", node)
	}

	return signalNone, nil
}

// renderIf renders the first branch whose condition holds.
func (r *renderer) renderIf(n *IfBlock) (signal, error) {
	ok, err := r.truth(n.Condition, n.Pos())
	if err != nil {
		return signalNone, err
	}
	if ok {
		return r.renderNodes(n.Body)
	}

	for _, branch := range n.ElseIfs {
		ok, err := r.truth(branch.Condition, branch.pos)
		if err != nil {
			return signalNone, err
		}
		if ok {
			return r.renderNodes(branch.Body)
		}
	}

	if n.Else != nil {
		return r.renderNodes(n.Else)
	}
	return signalNone, nil
}

// renderFor renders the loop body once per item, each in a fresh scope.
func (r *renderer) renderFor(n *ForBlock) error {
	v, err := r.eval(n.IterExpr, n.Pos())
	if err != nil {
		return err
	}

	items, err := r.items(v, n.Pos())
	if err != nil {
		return err
	}

	if len(items) == 0 {
		_, err := r.renderNodes(n.Else)
		return err
	}

	for i, item := range items {
		scope := starlark.StringDict{"loop": loopInfo(items, i)}
		r.scopes = append(r.scopes, scope)

		err := r.assign(n.Pos(), n.VarNames, item)
		var sig signal
		if err == nil {
			sig, err = r.renderNodes(n.Body)
		}

		r.scopes = r.scopes[:len(r.scopes)-1]
		if err != nil {
			return err
		}
		if sig == signalBreak {
			break
		}
	}

	return nil
}

// items collects the elements of an iterable loop source.
func (r *renderer) items(v starlark.Value, pos Position) ([]starlark.Value, error) {
	if u, ok := v.(starctx.Undefined); ok {
		if r.ctx.Strict {
			return nil, NewRenderErrorf(pos, "cannot iterate over undefined %q", u.Name)
		}
		return nil, nil
	}

	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, NewRenderErrorf(pos, "cannot iterate over %s", v.Type())
	}
	defer iter.Done()

	var items []starlark.Value
	var item starlark.Value
	for iter.Next(&item) {
		items = append(items, item)
	}
	return items, nil
}

// loopInfo builds the loop variable for item i.
func loopInfo(items []starlark.Value, i int) starlark.Value {
	length := len(items)

	var prev, next starlark.Value = starctx.Undefined{Name: "previtem"}, starctx.Undefined{Name: "nextitem"}
	if i > 0 {
		prev = items[i-1]
	}
	if i+1 < length {
		next = items[i+1]
	}

	return starlarkstruct.FromStringDict(starlark.String("loop"), starlark.StringDict{
		"index":     starlark.MakeInt(i + 1),
		"index0":    starlark.MakeInt(i),
		"revindex":  starlark.MakeInt(length - i),
		"revindex0": starlark.MakeInt(length - i - 1),
		"first":     starlark.Bool(i == 0),
		"last":      starlark.Bool(i == length-1),
		"length":    starlark.MakeInt(length),
		"previtem":  prev,
		"nextitem":  next,
	})
}

// assign binds names in the innermost scope, unpacking v when there is more
// than one name.
func (r *renderer) assign(pos Position, names []string, v starlark.Value) error {
	scope := r.scopes[len(r.scopes)-1]

	if len(names) == 1 {
		scope[names[0]] = v
		return nil
	}

	values, err := r.items(v, pos)
	if err != nil {
		return err
	}
	if len(values) != len(names) {
		return NewRenderErrorf(pos, "cannot unpack %d values into %d names", len(values), len(names))
	}
	for i, name := range names {
		scope[name] = values[i]
	}
	return nil
}

// truth evaluates a condition.
func (r *renderer) truth(expr string, pos Position) (bool, error) {
	v, err := r.eval(expr, pos)
	if err != nil {
		return false, err
	}
	if u, ok := v.(starctx.Undefined); ok && r.ctx.Strict {
		return false, NewRenderErrorf(pos, "%q is undefined", undefinedName(u, expr))
	}
	return bool(v.Truth()), nil
}

// eval evaluates expr with every scope visible, inner scopes shadowing outer ones.
func (r *renderer) eval(expr string, pos Position) (starlark.Value, error) {
	locals := make(starlark.StringDict)
	for _, scope := range r.scopes {
		for k, v := range scope {
			locals[k] = v
		}
	}

	v, err := r.ctx.EvalExprWithLocals(expr, r.file, pos.Line, locals)
	if err != nil {
		return nil, WrapRenderError(pos, "expression failed", err)
	}
	return v, nil
}

func undefinedName(u starctx.Undefined, source string) string {
	if u.Name != "" {
		return u.Name
	}
	return source
}
