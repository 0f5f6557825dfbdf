// Package template provides a Jinja-style template processor with Starlark expressions.
// It supports {{ expr }} for output, {% stmt %} for control flow and {# ... #} for comments.
package template

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// Node is the interface for all template AST nodes.
type Node interface {
	Pos() Position
	node() // marker method to restrict implementation
}

// nodeBase provides common Position handling for all nodes.
type nodeBase struct {
	pos Position
}

func (n *nodeBase) Pos() Position { return n.pos }
func (n *nodeBase) node()         {}

// TextNode represents literal text (passed through unchanged).
type TextNode struct {
	nodeBase
	Text string
}

// ExprNode represents a {{ expr }} expression.
// Source is the expression as written; Expr is the Starlark expression with
// filter pipelines rewritten into calls.
type ExprNode struct {
	nodeBase
	Source string
	Expr   string
}

// StmtKind identifies the type of control flow statement.
type StmtKind int

// StmtKind constants for control flow statement types.
const (
	StmtUnknown  StmtKind = iota // Unknown/invalid statement
	StmtFor                      // {% for x in items %}
	StmtEndFor                   // {% endfor %}
	StmtIf                       // {% if cond %}
	StmtElif                     // {% elif cond %}
	StmtElse                     // {% else %}
	StmtEndIf                    // {% endif %}
	StmtSet                      // {% set x = expr %} or {% set x %}
	StmtEndSet                   // {% endset %}
	StmtDo                       // {% do expr %}
	StmtContinue                 // {% continue %}
	StmtBreak                    // {% break %}
	StmtRaw                      // {% raw %}
	StmtEndRaw                   // {% endraw %}
)

func (k StmtKind) String() string {
	switch k {
	case StmtUnknown:
		return "unknown"
	case StmtFor:
		return "for"
	case StmtEndFor:
		return "endfor"
	case StmtIf:
		return "if"
	case StmtElif:
		return "elif"
	case StmtElse:
		return "else"
	case StmtEndIf:
		return "endif"
	case StmtSet:
		return "set"
	case StmtEndSet:
		return "endset"
	case StmtDo:
		return "do"
	case StmtContinue:
		return "continue"
	case StmtBreak:
		return "break"
	case StmtRaw:
		return "raw"
	case StmtEndRaw:
		return "endraw"
	default:
		return "unknown"
	}
}

// stmtKinds maps statement keywords to their kind.
var stmtKinds = map[string]StmtKind{
	"for":      StmtFor,
	"endfor":   StmtEndFor,
	"if":       StmtIf,
	"elif":     StmtElif,
	"else":     StmtElse,
	"endif":    StmtEndIf,
	"set":      StmtSet,
	"endset":   StmtEndSet,
	"do":       StmtDo,
	"continue": StmtContinue,
	"break":    StmtBreak,
	"raw":      StmtRaw,
	"endraw":   StmtEndRaw,
}

// StmtNode represents a {% stmt %} statement (raw from lexer, before parsing into blocks).
type StmtNode struct {
	nodeBase
	Kind StmtKind
	Args string // Everything after the keyword
}

// ForBlock represents a complete for loop with its body.
// Created by the parser from StmtNode pairs.
type ForBlock struct {
	nodeBase
	VarNames []string // Loop targets; more than one unpacks each item
	IterExpr string   // Iterator expression (evaluated by Starlark)
	Body     []Node   // Nodes inside the loop
	Else     []Node   // Rendered when the iterable is empty (may be nil)
}

// IfBlock represents a complete if/elif/else conditional.
// Created by the parser from StmtNode sequences.
type IfBlock struct {
	nodeBase
	Condition string   // if condition expression
	Body      []Node   // Nodes for the if branch
	ElseIfs   []Branch // elif branches (may be empty)
	Else      []Node   // else branch (may be nil)
}

// Branch represents an elif branch.
type Branch struct {
	Condition string
	Body      []Node
	pos       Position
}

// SetNode represents {% set names = expr %}.
type SetNode struct {
	nodeBase
	Names []string
	Expr  string
}

// SetBlock represents {% set name %}...{% endset %}; the rendered body is
// assigned as a string.
type SetBlock struct {
	nodeBase
	Name string
	Body []Node
}

// DoNode represents {% do expr %}: the expression is evaluated for its side
// effects and nothing is output.
type DoNode struct {
	nodeBase
	Expr string
}

// ContinueNode represents {% continue %}.
type ContinueNode struct {
	nodeBase
}

// BreakNode represents {% break %}.
type BreakNode struct {
	nodeBase
}

// Template represents a complete parsed template.
type Template struct {
	Nodes []Node
	File  string // Source file path

	env *Environment // set when parsed through an Environment
}
