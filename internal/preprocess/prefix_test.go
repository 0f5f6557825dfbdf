package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRules(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string // name of the excluding rule, "" when prefixed
	}{
		{"bare name", "a", ""},
		{"dotted path", "a.b.c", ""},
		{"already prefixed", "row.a", "row-prefixed"},
		{"prefix without dot", "rowid", ""},
		{"function call", "uuid()", "function-call"},
		{"method call", "now().date", "function-call"},
		{"digits", "123", "numeric"},
		{"digits with underscores", "1_000", "numeric"},
		{"only underscores", "__", ""},
		{"dotted number", "1.5", ""},
		{"leading digits", "1abc", ""},
	}

	p := NewPrefixer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Excluded(tt.ref))
		})
	}
}

func TestPrefixer_Prefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		count    int
	}{
		{
			name:     "bare variables",
			input:    "({{a}}, {{ b }})",
			expected: "({{ row.a }}, {{ row.b }})",
			count:    2,
		},
		{
			name:     "filters kept verbatim",
			input:    "{{ name | upper }}",
			expected: "{{ row.name| upper  }}",
			count:    1,
		},
		{
			name:     "dotted path",
			input:    "{{ owner.address.city }}",
			expected: "{{ row.owner.address.city }}",
			count:    1,
		},
		{
			name:     "excluded references are normalized only",
			input:    "({{row.a}}, {{uuid()}}, {{ 42 }})",
			expected: "({{ row.a }}, {{ uuid() }}, {{ 42 }})",
			count:    0,
		},
		{
			name:     "expressions with spaces are untouched",
			input:    "{{ a + b }}",
			expected: "{{ a + b }}",
			count:    0,
		},
		{
			name:     "literal text",
			input:    "('1'), ('2')",
			expected: "('1'), ('2')",
			count:    0,
		},
		{
			name:     "repeated references",
			input:    "({{a}}, {{b}}), ({{a}}, {{b}})",
			expected: "({{ row.a }}, {{ row.b }}), ({{ row.a }}, {{ row.b }})",
			count:    4,
		},
	}

	p := NewPrefixer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, count := p.PrefixCount(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, tt.count, count)
			assert.Equal(t, tt.expected, PrefixRowVars(tt.input))
		})
	}
}

func TestPrefixer_CustomRules(t *testing.T) {
	p := NewPrefixer(append(DefaultRules, Rule{
		Name:  "batch-metadata",
		Match: func(name string) bool { return name == "batch_index" },
	})...)

	got, count := p.PrefixCount("({{ batch_index }}, {{ id }})")
	assert.Equal(t, "({{ batch_index }}, {{ row.id }})", got)
	assert.Equal(t, 1, count)
	assert.Equal(t, "batch-metadata", p.Excluded("batch_index"))
}
