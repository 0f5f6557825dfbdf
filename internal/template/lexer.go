package template

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText    TokenType = iota // Literal text (SQL)
	TokenExpr                     // Expression content (between {{ and }})
	TokenStmt                     // Statement content (between {% and %})
	TokenComment                  // Comment content (between {# and #})
	TokenEOF                      // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenComment:
		return "COMMENT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position

	// TrimLeft is set by "{{-", "{%-" or "{#-": whitespace before the tag is removed.
	TrimLeft bool
	// TrimRight is set by "-}}", "-%}" or "-#}": whitespace after the tag is removed.
	TrimRight bool
	// KeepLeft is set by "{%+" and disables lstrip_blocks for the tag.
	KeepLeft bool
	// KeepRight is set by "+%}" and disables trim_blocks for the tag.
	KeepRight bool
}

// Whitespace configures block-tag whitespace handling.
type Whitespace struct {
	// TrimBlocks removes the first newline after a block or comment tag.
	TrimBlocks bool
	// LStripBlocks removes spaces and tabs from the start of a line up to a block or comment tag.
	LStripBlocks bool
}

// endRawPattern finds the tag closing a raw block.
var endRawPattern = regexp.MustCompile(`\{%[-+]?\s*endraw\s*[-+]?%\}`)

// Lexer tokenizes a template string.
type Lexer struct {
	input    string
	file     string
	ws       Whitespace
	pos      int // current position in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
// No block whitespace trimming is applied unless WithWhitespace is used.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		pos:   0,
		line:  1,
		col:   1,
	}
}

// WithWhitespace sets the block whitespace handling and returns the lexer.
func (l *Lexer) WithWhitespace(ws Whitespace) *Lexer {
	l.ws = ws
	return l
}

// Tokenize converts the input into a slice of tokens.
// Whitespace control is applied to text tokens; text left empty is dropped.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}

		if tok.Type == TokenStmt && tok.Value == "raw" {
			raw, err := l.scanRaw()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, raw)
		}
	}

	return l.applyWhitespace(tokens), nil
}

// nextToken returns the next token from the input.
func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.position()}, nil
	}

	switch {
	case l.matchString("{{"):
		return l.scanTag(TokenExpr, "}}")
	case l.matchString("{%"):
		return l.scanTag(TokenStmt, "%}")
	case l.matchString("{#"):
		return l.scanTag(TokenComment, "#}")
	}

	// Otherwise, scan text until we hit a delimiter or EOF
	return l.scanText()
}

// atDelimiter reports whether an opening delimiter starts at the current position.
func (l *Lexer) atDelimiter() bool {
	return l.matchString("{{") || l.matchString("{%") || l.matchString("{#")
}

// scanText scans literal text until a delimiter or EOF.
func (l *Lexer) scanText() (Token, error) {
	l.markStart()
	start := l.pos

	for l.pos < len(l.input) {
		if l.atDelimiter() {
			break
		}
		l.advance()
	}

	if l.pos == start {
		// No text consumed, something is wrong
		return Token{}, NewLexError(l.position(), "unexpected state in lexer")
	}

	return Token{
		Type:  TokenText,
		Value: l.input[start:l.pos],
		Pos:   l.startPosition(),
	}, nil
}

// scanTag scans an expression, statement or comment up to its closing delimiter.
// String literals are skipped and, for expressions, nested braces are tracked so
// that dict literals may contain "}}".
func (l *Lexer) scanTag(typ TokenType, closing string) (Token, error) {
	l.markStart()
	tok := Token{Type: typ, Pos: l.startPosition()}

	// Skip the opening delimiter
	l.advance()
	l.advance()

	switch {
	case l.peek() == '-':
		tok.TrimLeft = true
		l.advance()
	case l.peek() == '+' && typ != TokenExpr:
		tok.KeepLeft = true
		l.advance()
	}

	contentStart := l.pos
	depth := 0
	var quote rune

	for l.pos < len(l.input) {
		r := l.peek()

		if typ != TokenComment {
			if quote != 0 {
				if r == '\\' {
					l.advance()
				} else if r == quote {
					quote = 0
				}
				l.advance()
				continue
			}
			if r == '"' || r == '\'' {
				quote = r
				l.advance()
				continue
			}
		}

		if l.matchString(closing) && depth == 0 {
			content := l.input[contentStart:l.pos]
			l.advance()
			l.advance()

			switch {
			case strings.HasSuffix(content, "-"):
				tok.TrimRight = true
				content = content[:len(content)-1]
			case strings.HasSuffix(content, "+") && typ != TokenExpr:
				tok.KeepRight = true
				content = content[:len(content)-1]
			}

			tok.Value = strings.TrimSpace(content)
			return tok, nil
		}

		// Track nested braces to handle dict literals inside expressions
		if typ == TokenExpr {
			if r == '{' {
				depth++
			} else if r == '}' && depth > 0 {
				depth--
			}
		}

		l.advance()
	}

	switch typ {
	case TokenExpr:
		return Token{}, NewLexError(l.startPosition(), "unclosed expression: missing '}}'")
	case TokenComment:
		return Token{}, NewLexError(l.startPosition(), "unclosed comment: missing '#}'")
	default:
		return Token{}, NewLexError(l.startPosition(), "unclosed statement: missing '%}'")
	}
}

// scanRaw consumes everything up to the matching endraw tag as literal text.
func (l *Lexer) scanRaw() (Token, error) {
	l.markStart()
	start := l.pos

	loc := endRawPattern.FindStringIndex(l.input[l.pos:])
	if loc == nil {
		return Token{}, NewUnmatchedBlockError(l.startPosition(), StmtRaw)
	}

	for l.pos < start+loc[0] {
		l.advance()
	}

	return Token{
		Type:  TokenText,
		Value: l.input[start:l.pos],
		Pos:   l.startPosition(),
	}, nil
}

// applyWhitespace applies trim markers, trim_blocks and lstrip_blocks to the
// text tokens and drops the ones left empty.
func (l *Lexer) applyWhitespace(tokens []Token) []Token {
	out := tokens[:0]

	for i := range tokens {
		tok := tokens[i]
		if tok.Type != TokenText {
			out = append(out, tok)
			continue
		}

		text := tok.Value

		if i+1 < len(tokens) {
			next := tokens[i+1]
			switch {
			case next.TrimLeft:
				text = strings.TrimRightFunc(text, unicode.IsSpace)
			case l.ws.LStripBlocks && isBlockTag(next.Type) && !next.KeepLeft:
				text = lstripTail(text, i == 0)
			}
		}

		if i > 0 {
			prev := tokens[i-1]
			switch {
			case prev.TrimRight:
				text = strings.TrimLeftFunc(text, unicode.IsSpace)
			case l.ws.TrimBlocks && isBlockTag(prev.Type) && !prev.KeepRight:
				if strings.HasPrefix(text, "\r\n") {
					text = text[2:]
				} else {
					text = strings.TrimPrefix(text, "\n")
				}
			}
		}

		if text == "" {
			continue
		}
		tok.Value = text
		out = append(out, tok)
	}

	return out
}

// isBlockTag reports whether the token type takes part in block whitespace rules.
func isBlockTag(t TokenType) bool {
	return t == TokenStmt || t == TokenComment
}

// lstripTail removes spaces and tabs between the last line start and the end
// of text. atStart marks text that begins the template.
func lstripTail(text string, atStart bool) string {
	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 && !atStart {
		return text
	}
	if strings.Trim(text[idx+1:], " \t") != "" {
		return text
	}
	return text[:idx+1]
}

// Helper methods

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// matchString checks if the input at current position matches s.
func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// markStart records the start position for the current token.
func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

// startPosition returns the position where the current token started.
func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}
