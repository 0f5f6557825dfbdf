package template

import (
	"regexp"
	"slices"
	"strings"
)

var (
	// forPattern splits "targets in iterable".
	forPattern = regexp.MustCompile(`(?s)^\(?\s*([A-Za-z_]\w*(?:\s*,\s*[A-Za-z_]\w*)*)\s*,?\s*\)?\s+in\s+(.+)$`)
	// setPattern splits "targets = expr".
	setPattern = regexp.MustCompile(`(?s)^([A-Za-z_]\w*(?:\s*,\s*[A-Za-z_]\w*)*)\s*=([^=].*)$`)
)

// ParseString parses a template with the default whitespace handling
// (trim_blocks and lstrip_blocks) and the builtin filters.
func ParseString(input, file string) (*Template, error) {
	return parse(input, file, defaultWhitespace, IsBuiltinFilter)
}

// parse tokenizes input and builds the template tree. knownFilter reports
// whether a filter name can be used in expressions.
func parse(input, file string, ws Whitespace, knownFilter func(string) bool) (*Template, error) {
	tokens, err := NewLexer(input, file).WithWhitespace(ws).Tokenize()
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, file: file, knownFilter: knownFilter}
	nodes, end, err := p.parseNodes()
	if err != nil {
		return nil, err
	}
	if end != nil {
		return nil, NewUnmatchedBlockError(end.Pos(), end.Kind)
	}

	return &Template{Nodes: nodes, File: file}, nil
}

// parser builds the node tree from a token stream.
type parser struct {
	tokens      []Token
	pos         int
	file        string
	knownFilter func(string) bool
	loopDepth   int
}

// next returns the next token, or EOF when the stream is exhausted.
func (p *parser) next() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

// parseNodes parses nodes until EOF or a statement of one of the stop kinds,
// which is returned without being consumed into the tree.
func (p *parser) parseNodes(stop ...StmtKind) ([]Node, *StmtNode, error) {
	var nodes []Node

	for {
		tok := p.next()

		switch tok.Type {
		case TokenEOF:
			return nodes, nil, nil

		case TokenText:
			nodes = append(nodes, &TextNode{nodeBase: nodeBase{pos: tok.Pos}, Text: tok.Value})

		case TokenComment:
			continue

		case TokenExpr:
			node, err := p.parseExpr(tok)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, node)

		case TokenStmt:
			stmt, err := p.parseStmt(tok)
			if err != nil {
				return nil, nil, err
			}
			if slices.Contains(stop, stmt.Kind) {
				return nodes, stmt, nil
			}

			node, err := p.parseBlock(stmt)
			if err != nil {
				return nil, nil, err
			}
			if node != nil {
				nodes = append(nodes, node...)
			}
		}
	}
}

// parseExpr builds an ExprNode from an expression token.
func (p *parser) parseExpr(tok Token) (*ExprNode, error) {
	if tok.Value == "" {
		return nil, NewParseError(tok.Pos, "empty expression")
	}
	expr, err := p.translate(tok.Pos, tok.Value)
	if err != nil {
		return nil, err
	}
	return &ExprNode{nodeBase: nodeBase{pos: tok.Pos}, Source: tok.Value, Expr: expr}, nil
}

// parseStmt splits a statement token into its keyword and arguments.
func (p *parser) parseStmt(tok Token) (*StmtNode, error) {
	keyword, args := tok.Value, ""
	if i := strings.IndexAny(tok.Value, " \t\r\n"); i >= 0 {
		keyword, args = tok.Value[:i], tok.Value[i+1:]
	}

	kind, ok := stmtKinds[keyword]
	if !ok {
		if keyword == "" {
			return nil, NewParseError(tok.Pos, "empty statement")
		}
		return nil, NewParseErrorf(tok.Pos, "unknown statement %q", keyword)
	}

	return &StmtNode{nodeBase: nodeBase{pos: tok.Pos}, Kind: kind, Args: strings.TrimSpace(args)}, nil
}

// parseBlock turns an opening statement into a node, consuming its body.
func (p *parser) parseBlock(stmt *StmtNode) ([]Node, error) {
	switch stmt.Kind {
	case StmtFor:
		node, err := p.parseFor(stmt)
		return []Node{node}, err

	case StmtIf:
		node, err := p.parseIf(stmt)
		return []Node{node}, err

	case StmtSet:
		node, err := p.parseSet(stmt)
		return []Node{node}, err

	case StmtDo:
		if stmt.Args == "" {
			return nil, NewParseError(stmt.Pos(), "'do' requires an expression")
		}
		expr, err := p.translate(stmt.Pos(), stmt.Args)
		if err != nil {
			return nil, err
		}
		return []Node{&DoNode{nodeBase: stmt.nodeBase, Expr: expr}}, nil

	case StmtContinue:
		if p.loopDepth == 0 {
			return nil, NewUnmatchedBlockError(stmt.Pos(), StmtContinue)
		}
		return []Node{&ContinueNode{nodeBase: stmt.nodeBase}}, nil

	case StmtBreak:
		if p.loopDepth == 0 {
			return nil, NewUnmatchedBlockError(stmt.Pos(), StmtBreak)
		}
		return []Node{&BreakNode{nodeBase: stmt.nodeBase}}, nil

	case StmtRaw:
		// The lexer already turned the raw body into a single text token.
		body, end, err := p.parseNodes(StmtEndRaw)
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, NewUnmatchedBlockError(stmt.Pos(), StmtRaw)
		}
		return body, nil

	default:
		// Closing or continuation statement outside its block
		return nil, NewUnmatchedBlockError(stmt.Pos(), stmt.Kind)
	}
}

// parseFor parses {% for targets in expr %} ... [{% else %} ...] {% endfor %}.
func (p *parser) parseFor(stmt *StmtNode) (*ForBlock, error) {
	m := forPattern.FindStringSubmatch(stmt.Args)
	if m == nil {
		return nil, NewParseErrorf(stmt.Pos(), "invalid for loop %q: expected 'for name in expr'", stmt.Args)
	}

	iter, err := p.translate(stmt.Pos(), strings.TrimSpace(m[2]))
	if err != nil {
		return nil, err
	}

	block := &ForBlock{
		nodeBase: stmt.nodeBase,
		VarNames: splitNames(m[1]),
		IterExpr: iter,
	}

	p.loopDepth++
	body, end, err := p.parseNodes(StmtElse, StmtEndFor)
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, NewUnmatchedBlockError(stmt.Pos(), StmtFor)
	}
	block.Body = body

	if end.Kind == StmtElse {
		elseBody, end, err := p.parseNodes(StmtEndFor)
		if err != nil {
			return nil, err
		}
		if end == nil {
			return nil, NewUnmatchedBlockError(stmt.Pos(), StmtFor)
		}
		block.Else = elseBody
	}

	return block, nil
}

// parseIf parses an if/elif/else/endif chain.
func (p *parser) parseIf(stmt *StmtNode) (*IfBlock, error) {
	if stmt.Args == "" {
		return nil, NewParseError(stmt.Pos(), "'if' requires a condition")
	}
	cond, err := p.translate(stmt.Pos(), stmt.Args)
	if err != nil {
		return nil, err
	}

	block := &IfBlock{nodeBase: stmt.nodeBase, Condition: cond}

	body, end, err := p.parseNodes(StmtElif, StmtElse, StmtEndIf)
	if err != nil {
		return nil, err
	}
	block.Body = body

	for {
		if end == nil {
			return nil, NewUnmatchedBlockError(stmt.Pos(), StmtIf)
		}

		switch end.Kind {
		case StmtEndIf:
			return block, nil

		case StmtElif:
			if end.Args == "" {
				return nil, NewParseError(end.Pos(), "'elif' requires a condition")
			}
			cond, err := p.translate(end.Pos(), end.Args)
			if err != nil {
				return nil, err
			}
			branch := Branch{Condition: cond, pos: end.Pos()}
			branch.Body, end, err = p.parseNodes(StmtElif, StmtElse, StmtEndIf)
			if err != nil {
				return nil, err
			}
			block.ElseIfs = append(block.ElseIfs, branch)

		case StmtElse:
			block.Else, end, err = p.parseNodes(StmtEndIf)
			if err != nil {
				return nil, err
			}
			if end == nil {
				return nil, NewUnmatchedBlockError(stmt.Pos(), StmtIf)
			}
			return block, nil
		}
	}
}

// parseSet parses {% set names = expr %} and the block form {% set name %}...{% endset %}.
func (p *parser) parseSet(stmt *StmtNode) (Node, error) {
	if m := setPattern.FindStringSubmatch(stmt.Args); m != nil {
		expr := strings.TrimSpace(m[2])
		if expr == "" {
			return nil, NewParseError(stmt.Pos(), "'set' requires a value")
		}
		expr, err := p.translate(stmt.Pos(), expr)
		if err != nil {
			return nil, err
		}
		return &SetNode{nodeBase: stmt.nodeBase, Names: splitNames(m[1]), Expr: expr}, nil
	}

	if !isIdentifier(stmt.Args) {
		return nil, NewParseErrorf(stmt.Pos(), "invalid set statement %q", stmt.Args)
	}

	body, end, err := p.parseNodes(StmtEndSet)
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, NewUnmatchedBlockError(stmt.Pos(), StmtSet)
	}

	return &SetBlock{nodeBase: stmt.nodeBase, Name: stmt.Args, Body: body}, nil
}

// translate rewrites filter pipelines, reporting failures at pos.
func (p *parser) translate(pos Position, expr string) (string, error) {
	out, err := translateExpr(expr, p.knownFilter)
	if err != nil {
		return "", NewParseErrorf(pos, "%s in %q", err, expr)
	}
	return out, nil
}

// splitNames splits a comma separated list of identifiers.
func splitNames(s string) []string {
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
