package macro

import (
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/syntax"
)

// This file reads macro signatures without executing the files.

// Function is a public function defined in a macro file.
type Function struct {
	Name      string
	Args      []string // "x", "x=None", "*args", "**kwargs"
	Docstring string
	Line      int
}

// Signature returns the call form, e.g. "slug(s, sep='-')".
func (f *Function) Signature() string {
	return f.Name + "(" + strings.Join(f.Args, ", ") + ")"
}

// Summary returns the first line of the docstring.
func (f *Function) Summary() string {
	first, _, _ := strings.Cut(f.Docstring, "\n")
	return strings.TrimSpace(first)
}

// Namespace describes one macro file.
type Namespace struct {
	Name      string
	Path      string
	Functions []*Function
}

// Describe statically parses every macro file of the loader's directory.
func (l *Loader) Describe() ([]*Namespace, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	namespaces := make([]*Namespace, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file) //nolint:gosec // G304: path comes from a glob of the macros directory
		if err != nil {
			return nil, &LoadError{File: file, Message: err.Error()}
		}
		ns, err := DescribeFile(file, content)
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, nil
}

// DescribeFile parses a .star file and lists its public functions.
func DescribeFile(filename string, content []byte) (*Namespace, error) {
	f, err := (&syntax.FileOptions{}).Parse(filename, content, 0)
	if err != nil {
		return nil, &LoadError{File: filename, Message: err.Error()}
	}

	ns := &Namespace{
		Name: strings.TrimSuffix(filepath.Base(filename), ".star"),
		Path: filename,
	}
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		ns.Functions = append(ns.Functions, &Function{
			Name:      def.Name.Name,
			Args:      params(def.Params),
			Docstring: docstring(def.Body),
			Line:      int(def.Name.NamePos.Line),
		})
	}
	return ns, nil
}

func params(list []syntax.Expr) []string {
	args := make([]string, 0, len(list))
	for _, param := range list {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
		case *syntax.BinaryExpr:
			if ident, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
				args = append(args, ident.Name+"="+exprString(p.Y))
			}
		case *syntax.UnaryExpr:
			switch ident, _ := p.X.(*syntax.Ident); {
			case ident == nil:
				args = append(args, "*")
			case p.Op == syntax.STARSTAR:
				args = append(args, "**"+ident.Name)
			default:
				args = append(args, "*"+ident.Name)
			}
		}
	}
	return args
}

func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	stmt, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := stmt.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return strings.TrimSpace(s)
}

// exprString renders a default value; composite values are abbreviated.
func exprString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprString(e.X)
		}
		return exprString(e.X)
	default:
		return "..."
	}
}
