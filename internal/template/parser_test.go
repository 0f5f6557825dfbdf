package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_ValidInput(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNodes int
		checkFunc func(t *testing.T, tmpl *Template)
	}{
		{
			name:      "plain text",
			input:     "SELECT * FROM users",
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				text, ok := tmpl.Nodes[0].(*TextNode)
				require.True(t, ok, "expected TextNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, "SELECT * FROM users", text.Text)
			},
		},
		{
			name:      "simple expression",
			input:     "SELECT {{ column }} FROM users",
			wantNodes: 3,
			checkFunc: func(t *testing.T, tmpl *Template) {
				text1, ok := tmpl.Nodes[0].(*TextNode)
				require.True(t, ok, "node[0]: expected TextNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, "SELECT ", text1.Text)

				expr, ok := tmpl.Nodes[1].(*ExprNode)
				require.True(t, ok, "node[1]: expected ExprNode, got %T", tmpl.Nodes[1])
				assert.Equal(t, "column", expr.Expr)

				text2, ok := tmpl.Nodes[2].(*TextNode)
				require.True(t, ok, "node[2]: expected TextNode, got %T", tmpl.Nodes[2])
				assert.Equal(t, " FROM users", text2.Text)
			},
		},
		{
			name:      "filtered expression",
			input:     "{{ name | trim | upper }}",
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				expr, ok := tmpl.Nodes[0].(*ExprNode)
				require.True(t, ok, "expected ExprNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, "name | trim | upper", expr.Source)
				assert.Equal(t, "__filter_upper(__filter_trim(name))", expr.Expr)
			},
		},
		{
			name: "for loop",
			input: `{% for col in columns %}
{{ col }}
{% endfor %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				forBlock, ok := tmpl.Nodes[0].(*ForBlock)
				require.True(t, ok, "expected ForBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, []string{"col"}, forBlock.VarNames)
				assert.Equal(t, "columns", forBlock.IterExpr)
				require.Len(t, forBlock.Body, 2)
				expr, ok := forBlock.Body[0].(*ExprNode)
				require.True(t, ok, "body[0]: expected ExprNode, got %T", forBlock.Body[0])
				assert.Equal(t, "col", expr.Expr)
				assert.Nil(t, forBlock.Else)
			},
		},
		{
			name:      "for loop with list",
			input:     `{% for x in ["a", "b", "c"] %}{{ x }}{% endfor %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				forBlock, ok := tmpl.Nodes[0].(*ForBlock)
				require.True(t, ok, "expected ForBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, []string{"x"}, forBlock.VarNames)
				assert.Equal(t, `["a", "b", "c"]`, forBlock.IterExpr)
			},
		},
		{
			name:      "for loop with unpacking and else",
			input:     `{% for k, v in row.items() %}{{ k }}{% else %}empty{% endfor %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				forBlock, ok := tmpl.Nodes[0].(*ForBlock)
				require.True(t, ok, "expected ForBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, []string{"k", "v"}, forBlock.VarNames)
				assert.Equal(t, "row.items()", forBlock.IterExpr)
				require.Len(t, forBlock.Else, 1)
			},
		},
		{
			name: "if-else",
			input: `{% if condition %}
yes
{% else %}
no
{% endif %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				ifBlock, ok := tmpl.Nodes[0].(*IfBlock)
				require.True(t, ok, "expected IfBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, "condition", ifBlock.Condition)
				assert.Len(t, ifBlock.Body, 1)
				require.NotNil(t, ifBlock.Else)
				assert.Len(t, ifBlock.Else, 1)
			},
		},
		{
			name: "if-elif",
			input: `{% if a %}
A
{% elif b %}
B
{% elif c %}
C
{% endif %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				ifBlock, ok := tmpl.Nodes[0].(*IfBlock)
				require.True(t, ok, "expected IfBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, "a", ifBlock.Condition)
				require.Len(t, ifBlock.ElseIfs, 2)
				assert.Equal(t, "b", ifBlock.ElseIfs[0].Condition)
				assert.Equal(t, "c", ifBlock.ElseIfs[1].Condition)
				assert.Nil(t, ifBlock.Else)
			},
		},
		{
			name: "if-elif-else",
			input: `{% if a %}
A
{% elif b %}
B
{% else %}
C
{% endif %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				ifBlock, ok := tmpl.Nodes[0].(*IfBlock)
				require.True(t, ok, "expected IfBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, "a", ifBlock.Condition)
				assert.Len(t, ifBlock.ElseIfs, 1)
				assert.NotNil(t, ifBlock.Else)
			},
		},
		{
			name: "nested blocks",
			input: `{% for x in items %}
{% if x > 0 %}
{{ x }}
{% endif %}
{% endfor %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				forBlock, ok := tmpl.Nodes[0].(*ForBlock)
				require.True(t, ok, "expected ForBlock, got %T", tmpl.Nodes[0])

				var foundIf bool
				for _, node := range forBlock.Body {
					if _, ok := node.(*IfBlock); ok {
						foundIf = true
						break
					}
				}
				assert.True(t, foundIf, "expected nested IfBlock in ForBlock body")
			},
		},
		{
			name:      "set expression",
			input:     `{% set a, b = pair | list %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				set, ok := tmpl.Nodes[0].(*SetNode)
				require.True(t, ok, "expected SetNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, []string{"a", "b"}, set.Names)
				assert.Equal(t, "__filter_list(pair)", set.Expr)
			},
		},
		{
			name:      "set block",
			input:     `{% set body %}x{{ y }}{% endset %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				set, ok := tmpl.Nodes[0].(*SetBlock)
				require.True(t, ok, "expected SetBlock, got %T", tmpl.Nodes[0])
				assert.Equal(t, "body", set.Name)
				assert.Len(t, set.Body, 2)
			},
		},
		{
			name:      "do statement",
			input:     `{% do items.append(x | trim) %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				do, ok := tmpl.Nodes[0].(*DoNode)
				require.True(t, ok, "expected DoNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, "items.append(__filter_trim(x))", do.Expr)
			},
		},
		{
			name:      "loop control",
			input:     `{% for x in xs %}{% if x %}{% continue %}{% else %}{% break %}{% endif %}{% endfor %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				forBlock := tmpl.Nodes[0].(*ForBlock)
				ifBlock, ok := forBlock.Body[0].(*IfBlock)
				require.True(t, ok)
				assert.IsType(t, &ContinueNode{}, ifBlock.Body[0])
				assert.IsType(t, &BreakNode{}, ifBlock.Else[0])
			},
		},
		{
			name:      "raw block",
			input:     `{% raw %}{{ kept }}{% endraw %}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				text, ok := tmpl.Nodes[0].(*TextNode)
				require.True(t, ok, "expected TextNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, "{{ kept }}", text.Text)
			},
		},
		{
			name:      "comments are dropped",
			input:     `a{# note #}b`,
			wantNodes: 2,
		},
		{
			name:      "complex expression",
			input:     `{{ target.schema + "." + this.name }}`,
			wantNodes: 1,
			checkFunc: func(t *testing.T, tmpl *Template) {
				expr, ok := tmpl.Nodes[0].(*ExprNode)
				require.True(t, ok, "expected ExprNode, got %T", tmpl.Nodes[0])
				assert.Equal(t, `target.schema + "." + this.name`, expr.Expr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := ParseString(tt.input, "test.sql")
			require.NoError(t, err)
			require.Len(t, tmpl.Nodes, tt.wantNodes)
			if tt.checkFunc != nil {
				tt.checkFunc(t, tmpl)
			}
		})
	}
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		errType   string // optional: specific error type expected
		errSubstr string
	}{
		{
			name: "unmatched for",
			input: `{% for x in items %}
{{ x }}`,
			errType:   "UnmatchedBlockError",
			errSubstr: "missing 'endfor'",
		},
		{
			name: "unmatched endfor",
			input: `{{ x }}
{% endfor %}`,
			errType: "UnmatchedBlockError",
		},
		{
			name: "unmatched if",
			input: `{% if condition %}
yes`,
			errType: "UnmatchedBlockError",
		},
		{
			name: "unmatched else",
			input: `yes
{% else %}
no`,
			errType: "UnmatchedBlockError",
		},
		{
			name:    "unmatched set block",
			input:   `{% set x %}body`,
			errType: "UnmatchedBlockError",
		},
		{
			name:      "continue outside loop",
			input:     `{% continue %}`,
			errType:   "UnmatchedBlockError",
			errSubstr: "outside of a 'for' loop",
		},
		{
			name:      "break in for-else",
			input:     `{% for x in xs %}{% else %}{% break %}{% endfor %}`,
			errType:   "UnmatchedBlockError",
			errSubstr: "'break'",
		},
		{
			name:      "invalid statement",
			input:     `{% while true %}`,
			errType:   "ParseError",
			errSubstr: `unknown statement "while"`,
		},
		{
			name:      "invalid for",
			input:     `{% for in items %}{% endfor %}`,
			errType:   "ParseError",
			errSubstr: "invalid for loop",
		},
		{
			name:      "unknown filter",
			input:     `{{ x | shout }}`,
			errType:   "ParseError",
			errSubstr: `unknown filter "shout"`,
		},
		{
			name:      "empty expression",
			input:     `{{ }}`,
			errType:   "ParseError",
			errSubstr: "empty expression",
		},
		{
			name:    "if without condition",
			input:   `{% if %}x{% endif %}`,
			errType: "ParseError",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input, "test.sql")
			require.Error(t, err)

			switch tt.errType {
			case "UnmatchedBlockError":
				_, ok := err.(*UnmatchedBlockError)
				assert.True(t, ok, "expected UnmatchedBlockError, got %T: %v", err, err)
			case "ParseError":
				_, ok := err.(*ParseError)
				assert.True(t, ok, "expected ParseError, got %T: %v", err, err)
			}
			if tt.errSubstr != "" {
				assert.Contains(t, err.Error(), tt.errSubstr)
			}
		})
	}
}

func TestParser_ErrorPosition(t *testing.T) {
	_, err := ParseString("line1\n  {% if %}", "query.sql")
	require.Error(t, err)

	var tmplErr Error
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, Position{File: "query.sql", Line: 2, Column: 3}, tmplErr.Position())
	assert.Contains(t, err.Error(), "query.sql:2:3:")
}
