package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters(t *testing.T) {
	data := map[string]any{
		"name":  "  o'brien  ",
		"words": "hello big world",
		"items": []any{"a", "b", "c"},
		"rows": []any{
			map[string]any{"id": 1},
			map[string]any{"id": 2},
		},
		"nothing": nil,
		"amount":  "12.7",
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trim", `[{{ name | trim }}]`, "[o'brien]"},
		{"trim chars", `{{ "xxhixx" | trim("x") }}`, "hi"},
		{"join", `{{ items | join(", ") }}`, "a, b, c"},
		{"join without separator", `{{ items | join }}`, "abc"},
		{"join attribute", `{{ rows | join("+", attribute="id") }}`, "1+2"},
		{"upper", `{{ words | upper }}`, "HELLO BIG WORLD"},
		{"lower", `{{ "MiXeD" | lower }}`, "mixed"},
		{"title", `{{ words | title }}`, "Hello Big World"},
		{"capitalize", `{{ "hELLO wORLD" | capitalize }}`, "Hello world"},
		{"default on undefined", `{{ missing | default("n/a") }}`, "n/a"},
		{"default keeps value", `{{ words | d("n/a") }}`, "hello big world"},
		{"default keeps none", `{{ nothing | default("n/a") }}`, "None"},
		{"default boolean", `{{ "" | default("empty", true) }}`, "empty"},
		{"length", `{{ items | length }}`, "3"},
		{"count string", `{{ "héllo" | count }}`, "5"},
		{"length undefined", `{{ missing | length }}`, "0"},
		{"replace", `{{ words | replace("big", "small") }}`, "hello small world"},
		{"replace count", `{{ "aaa" | replace("a", "b", 2) }}`, "bba"},
		{"string", `{{ (1 | string) + "x" }}`, "1x"},
		{"int from string", `{{ amount | int }}`, "12"},
		{"int fallback", `{{ "abc" | int(7) }}`, "7"},
		{"int from float", `{{ 3.9 | int }}`, "3"},
		{"float", `{{ amount | float }}`, "12.7"},
		{"float from int", `{{ 2 | float }}`, "2.0"},
		{"first", `{{ items | first }}`, "a"},
		{"last", `{{ items | last }}`, "c"},
		{"first of empty", `[{{ [] | first }}]`, "[]"},
		{"list of string", `{{ "ab" | list | join("-") }}`, "a-b"},
		{"sqlquote string", `'{{ name | trim | sqlquote }}'`, "'o''brien'"},
		{"sqlquote undefined", `'{{ missing | sqlquote }}'`, "''"},
		{"sqlquote number", `{{ 42 | sqlquote }}`, "42"},
		{"sqlliteral string", `{{ name | trim | sqlliteral }}`, "'o''brien'"},
		{"sqlliteral none", `{{ nothing | sqlliteral }}`, "NULL"},
		{"sqlliteral number", `{{ 42 | sqlliteral }}`, "42"},
		{"sqlliteral bool", `{{ false | sqlliteral }}`, "FALSE"},
		{"format zero padded", `{{ "%03d" | format(7) }}`, "007"},
		{"format string and number", `{{ "%s-%s" | format("row", 2) }}`, "row-2"},
		{"format float precision", `{{ "%.2f" | format(amount | float) }}`, "12.70"},
		{"format none", `{{ "%s" | format(nothing) }}`, "None"},
		{"default falsy value with boolean", `{{ 0 | default(5, true) }}`, "5"},
		{"default truthy value with boolean", `{{ 3 | default(5, true) }}`, "3"},
	}

	env, err := NewEnvironment(WithClock(fixedClock))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.RenderString(tt.input, "test.sql", data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFilters_Errors(t *testing.T) {
	env, err := NewEnvironment()
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"length of int", `{{ 1 | length }}`},
		{"join non-iterable", `{{ 1 | join(",") }}`},
		{"replace missing argument", `{{ "a" | replace("a") }}`},
		{"format without pattern", `{{ 1 | format }}`},
		{"format keyword argument", `{{ "%d" | format(n=1) }}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.RenderString(tt.input, "test.sql", nil)
			require.Error(t, err)
		})
	}
}

func TestFilterNames(t *testing.T) {
	names := FilterNames()
	assert.Contains(t, names, "trim")
	assert.Contains(t, names, "join")
	assert.Contains(t, names, "sqlquote")
	assert.Contains(t, names, "sqlliteral")
	assert.Contains(t, names, "format")
	assert.IsIncreasing(t, names)
}
