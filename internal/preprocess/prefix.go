// Package preprocess rewrites templates before they are compiled. The
// batch-sql mode turns each INSERT ... VALUES statement into a loop over the
// rows of a batch, joining the rendered tuples so that skipped rows never
// leave a stray comma.
package preprocess

import (
	"regexp"
	"strings"
)

// RowVar is the loop variable bound to the current row of a batch.
const RowVar = "row"

// varPattern matches {{ name }} and {{ name | filters }} where name is a
// dotted path. Expressions containing spaces or operators do not match.
var varPattern = regexp.MustCompile(`\{\{\s*([^}\s|]+(?:\.[^}\s|]+)*)\s*(\|[^}]*)?\}\}`)

// Rule excludes a variable reference from row prefixing when Match returns true.
type Rule struct {
	Name  string
	Match func(name string) bool
}

// DefaultRules are applied in order; the first match keeps a reference as is.
var DefaultRules = []Rule{
	{
		Name:  "row-prefixed",
		Match: func(name string) bool { return strings.HasPrefix(name, RowVar+".") },
	},
	{
		Name:  "function-call",
		Match: func(name string) bool { return strings.Contains(name, "(") },
	},
	{
		Name:  "numeric",
		Match: isNumeric,
	},
}

// isNumeric reports whether name is only digits once underscores are removed.
func isNumeric(name string) bool {
	digits := strings.ReplaceAll(name, "_", "")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Prefixer rewrites bare variable references to reference the current row.
type Prefixer struct {
	rules []Rule
}

// NewPrefixer creates a prefixer with the given exclusion rules. With no
// rules, DefaultRules are used.
func NewPrefixer(rules ...Rule) *Prefixer {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Prefixer{rules: rules}
}

// Excluded returns the name of the first rule that keeps name unprefixed,
// or "" when the reference should be prefixed.
func (p *Prefixer) Excluded(name string) string {
	for _, rule := range p.rules {
		if rule.Match(name) {
			return rule.Name
		}
	}
	return ""
}

// Prefix rewrites every row-scoped reference in segment.
func (p *Prefixer) Prefix(segment string) string {
	out, _ := p.PrefixCount(segment)
	return out
}

// PrefixCount rewrites every row-scoped reference in segment and reports how
// many were rewritten. Every matched reference is normalized to
// "{{ name<filters> }}"; the filter text is kept verbatim.
func (p *Prefixer) PrefixCount(segment string) (string, int) {
	matches := varPattern.FindAllStringSubmatchIndex(segment, -1)
	if matches == nil {
		return segment, 0
	}

	var b strings.Builder
	b.Grow(len(segment) + len(matches)*len(RowVar+"."))

	count := 0
	last := 0
	for _, m := range matches {
		b.WriteString(segment[last:m[0]])

		name := strings.TrimSpace(segment[m[2]:m[3]])
		filters := ""
		if m[4] >= 0 {
			filters = segment[m[4]:m[5]]
		}

		b.WriteString("{{ ")
		if p.Excluded(name) == "" {
			b.WriteString(RowVar + ".")
			count++
		}
		b.WriteString(name)
		b.WriteString(filters)
		b.WriteString(" }}")

		last = m[1]
	}
	b.WriteString(segment[last:])

	return b.String(), count
}

// PrefixRowVars rewrites segment with the default rules.
func PrefixRowVars(segment string) string {
	return NewPrefixer().Prefix(segment)
}
