package preprocess

import (
	"regexp"
	"strings"
)

const (
	// BatchVar is the context variable holding the rows of the current batch.
	BatchVar = "batch"
	// JoinSeparator is the string literal, as written in the template, that
	// joins the rendered tuples of a statement: a comma and a newline.
	JoinSeparator = `,\n`
)

// insertPattern finds INSERT INTO ... VALUES <segment>; statements. Neither
// the head nor the segment may cross a ';', so an INSERT ... SELECT never
// reaches the VALUES of a later statement.
var insertPattern = regexp.MustCompile(`(?is)(INSERT\s+INTO\s+[^;]*?\bVALUES\b)([^;]*);`)

// tablePattern extracts the target of an INSERT head.
var tablePattern = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+([^\s(]+)`)

// Statement is one INSERT ... VALUES statement located in a template.
type Statement struct {
	Start int // byte offset of INSERT
	End   int // byte offset just past the terminating ';'

	Head    string // INSERT INTO ... VALUES
	Segment string // text between VALUES and ';'

	// Prefixed is Segment with row-scoped references rewritten.
	Prefixed string
	// References counts the rewritten references.
	References int
	// Transformed is false when the segment is blank and the statement is
	// left unchanged.
	Transformed bool
}

// Table returns the INSERT target as written, e.g. "schema.owner".
func (s Statement) Table() string {
	m := tablePattern.FindStringSubmatch(s.Head)
	if m == nil {
		return ""
	}
	return m[1]
}

// Rewrite returns the replacement text for the statement.
func (s Statement) Rewrite() string {
	if !s.Transformed {
		return s.Head + s.Segment + ";"
	}
	return s.Head + scaffold(s.Prefixed) + ";"
}

// scaffold wraps a VALUES segment in a loop over the batch. Each row renders
// the segment into __t, which is trimmed and collected; the collection is
// joined after the loop.
func scaffold(segment string) string {
	return "\n    {%- set __tuples = [] -%}\n" +
		"    {%- for " + RowVar + " in " + BatchVar + " %}\n" +
		"      {%- set __t -%}\n" +
		segment + "\n" +
		"      {%- endset -%}\n" +
		"      {%- do __tuples.append(__t | trim) -%}\n" +
		"    {%- endfor -%}\n" +
		"    {{ __tuples | join('" + JoinSeparator + "') }}\n"
}

// FindStatements locates every INSERT ... VALUES statement in text, in order,
// using the default prefixing rules.
func FindStatements(text string) []Statement {
	return NewPrefixer().FindStatements(text)
}

// FindStatements locates every INSERT ... VALUES statement in text, in order.
func (p *Prefixer) FindStatements(text string) []Statement {
	matches := insertPattern.FindAllStringSubmatchIndex(text, -1)
	statements := make([]Statement, 0, len(matches))

	for _, m := range matches {
		stmt := Statement{
			Start:   m[0],
			End:     m[1],
			Head:    text[m[2]:m[3]],
			Segment: text[m[4]:m[5]],
		}
		if strings.TrimSpace(stmt.Segment) != "" {
			stmt.Prefixed, stmt.References = p.PrefixCount(stmt.Segment)
			stmt.Transformed = true
		}
		statements = append(statements, stmt)
	}

	return statements
}

// BatchSQL rewrites every INSERT ... VALUES statement of text into the
// comma-safe batch loop. Text without such statements is returned unchanged.
func BatchSQL(text string) string {
	return NewPrefixer().BatchSQL(text)
}

// BatchSQL rewrites text using the prefixer's rules.
func (p *Prefixer) BatchSQL(text string) string {
	out, _ := p.Transform(text)
	return out
}

// Transform rewrites text and returns the statements it found.
func (p *Prefixer) Transform(text string) (string, []Statement) {
	statements := p.FindStatements(text)
	if len(statements) == 0 {
		return text, nil
	}

	var b strings.Builder
	last := 0
	for _, stmt := range statements {
		b.WriteString(text[last:stmt.Start])
		b.WriteString(stmt.Rewrite())
		last = stmt.End
	}
	b.WriteString(text[last:])

	return b.String(), statements
}
