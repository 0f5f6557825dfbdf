package template

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	starctx "github.com/sherlockq/fill/internal/starlark"
	"go.starlark.net/starlark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FilterFunc implements a filter. The filtered value is the first positional argument.
type FilterFunc func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// builtinFilters are the filters every Environment starts with.
var builtinFilters = map[string]FilterFunc{
	"trim":       filterTrim,
	"join":       filterJoin,
	"upper":      filterUpper,
	"lower":      filterLower,
	"title":      filterTitle,
	"capitalize": filterCapitalize,
	"default":    filterDefault,
	"d":          filterDefault,
	"length":     filterLength,
	"count":      filterLength,
	"replace":    filterReplace,
	"string":     filterString,
	"int":        filterInt,
	"float":      filterFloat,
	"first":      filterFirst,
	"last":       filterLast,
	"list":       filterList,
	"sqlquote":   filterSQLQuote,
	"sqlliteral": filterSQLLiteral,
	"format":     filterFormat,
}

// FilterNames returns the names of the builtin filters in sorted order.
func FilterNames() []string {
	names := make([]string, 0, len(builtinFilters))
	for name := range builtinFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuiltinFilter reports whether name is a builtin filter.
func IsBuiltinFilter(name string) bool {
	_, ok := builtinFilters[name]
	return ok
}

// builtinTests back the "is" operator: x is defined, n is divisibleby(3).
var builtinTests = map[string]FilterFunc{
	"defined":     testDefined,
	"undefined":   testUndefined,
	"none":        testNone,
	"string":      testString,
	"number":      testNumber,
	"even":        testEven,
	"odd":         testOdd,
	"divisibleby": testDivisibleBy,
}

// IsBuiltinTest reports whether name can follow "is".
func IsBuiltinTest(name string) bool {
	_, ok := builtinTests[name]
	return ok
}

// Builtins returns the predeclared globals together with the builtin
// filters and tests, ready to back a starlark ExecutionContext.
func Builtins(clock func() time.Time) starlark.StringDict {
	globals := starctx.Predeclared(clock)
	for name, fn := range builtinFilters {
		globals[FilterPrefix+name] = starlark.NewBuiltin(name, fn)
	}
	for name, fn := range builtinTests {
		globals[TestPrefix+name] = starlark.NewBuiltin(name, fn)
	}
	return globals
}

// Casers carry state, so each call gets its own.
func upper(s string) string { return cases.Upper(language.Und).String(s) }
func lower(s string) string { return cases.Lower(language.Und).String(s) }
func title(s string) string { return cases.Title(language.Und).String(s) }

// unpackValue unpacks the filtered value and any further arguments.
func unpackValue(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, pairs ...any) (starlark.Value, error) {
	var v starlark.Value
	all := append([]any{"value", &v}, pairs...)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, all...); err != nil {
		return nil, err
	}
	return v, nil
}

func filterTrim(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var chars starlark.Value = starlark.None
	v, err := unpackValue(b, args, kwargs, "chars?", &chars)
	if err != nil {
		return nil, err
	}
	s := starctx.ToString(v)
	if c, ok := starlark.AsString(chars); ok {
		return starlark.String(strings.Trim(s, c)), nil
	}
	return starlark.String(strings.TrimSpace(s)), nil
}

func filterJoin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep := ""
	attribute := ""
	v, err := unpackValue(b, args, kwargs, "d?", &sep, "attribute?", &attribute)
	if err != nil {
		return nil, err
	}
	items, err := iterate(b.Name(), v)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, item := range items {
		if attribute != "" {
			if item, err = getAttribute(item, attribute); err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
		}
		parts[i] = starctx.ToString(item)
	}
	return starlark.String(strings.Join(parts, sep)), nil
}

func filterUpper(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(upper(starctx.ToString(v))), nil
}

func filterLower(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(lower(starctx.ToString(v))), nil
}

func filterTitle(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(title(starctx.ToString(v))), nil
}

func filterCapitalize(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	s := starctx.ToString(v)
	if s == "" {
		return starlark.String(""), nil
	}
	_, size := utf8.DecodeRuneInString(s)
	return starlark.String(upper(s[:size]) + lower(s[size:])), nil
}

func filterDefault(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fallback starlark.Value = starlark.String("")
	boolean := false
	v, err := unpackValue(b, args, kwargs, "default_value?", &fallback, "boolean?", &boolean)
	if err != nil {
		return nil, err
	}
	if starctx.IsUndefined(v) || (boolean && !bool(v.Truth())) {
		return fallback, nil
	}
	return v, nil
}

func filterLength(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if starctx.IsUndefined(v) {
		return starlark.MakeInt(0), nil
	}
	if s, ok := v.(starlark.String); ok {
		return starlark.MakeInt(utf8.RuneCountInString(string(s))), nil
	}
	n := starlark.Len(v)
	if n < 0 {
		return nil, fmt.Errorf("%s: value of type %s has no length", b.Name(), v.Type())
	}
	return starlark.MakeInt(n), nil
}

func filterReplace(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var old, repl string
	count := -1
	v, err := unpackValue(b, args, kwargs, "old", &old, "new", &repl, "count?", &count)
	if err != nil {
		return nil, err
	}
	return starlark.String(strings.Replace(starctx.ToString(v), old, repl, count)), nil
}

func filterString(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(starctx.ToString(v)), nil
}

func filterInt(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fallback starlark.Value = starlark.MakeInt(0)
	v, err := unpackValue(b, args, kwargs, "default?", &fallback)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case starlark.Int:
		return val, nil
	case starlark.Float:
		return starlark.NumberToInt(val)
	case starlark.Bool:
		if val {
			return starlark.MakeInt(1), nil
		}
		return starlark.MakeInt(0), nil
	case starlark.String:
		s := strings.TrimSpace(string(val))
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return starlark.MakeInt64(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return starlark.NumberToInt(starlark.Float(f))
		}
	}
	return fallback, nil
}

func filterFloat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fallback starlark.Value = starlark.Float(0)
	v, err := unpackValue(b, args, kwargs, "default?", &fallback)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case starlark.Float:
		return val, nil
	case starlark.Int:
		return val.Float(), nil
	case starlark.Bool:
		if val {
			return starlark.Float(1), nil
		}
		return starlark.Float(0), nil
	case starlark.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64); err == nil {
			return starlark.Float(f), nil
		}
	}
	return fallback, nil
}

func filterFirst(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	items, err := iterate(b.Name(), v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return starctx.Undefined{Name: "first"}, nil
	}
	return items[0], nil
}

func filterLast(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	items, err := iterate(b.Name(), v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return starctx.Undefined{Name: "last"}, nil
	}
	return items[len(items)-1], nil
}

func filterList(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	items, err := iterate(b.Name(), v)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(items), nil
}

// filterSQLQuote doubles single quotes so the value can sit between quotes
// in the template. Undefined renders as empty.
func filterSQLQuote(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.String(strings.ReplaceAll(starctx.ToString(v), "'", "''")), nil
}

// filterSQLLiteral renders a value as a complete SQL literal: strings are
// single quoted with embedded quotes doubled, None and undefined become NULL.
func filterSQLLiteral(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case starlark.NoneType, starctx.Undefined:
		return starlark.String("NULL"), nil
	case starlark.Bool:
		if val {
			return starlark.String("TRUE"), nil
		}
		return starlark.String("FALSE"), nil
	case starlark.Int, starlark.Float:
		return starlark.String(val.String()), nil
	default:
		s := starctx.ToString(v)
		return starlark.String("'" + strings.ReplaceAll(s, "'", "''") + "'"), nil
	}
}

// formatArg lets %s print numbers and booleans as Jinja's format filter does.
type formatArg struct{ v any }

func (a formatArg) Format(f fmt.State, verb rune) {
	if _, ok := a.v.(string); !ok && verb == 's' {
		verb = 'v'
	}
	fmt.Fprintf(f, fmt.FormatString(f, verb), a.v)
}

// filterFormat applies printf-style formatting: "%03d" | format(index).
// Width, precision and flags follow fmt.
func filterFormat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing format string", b.Name())
	}
	pattern, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: format string must be a string, got %s", b.Name(), args[0].Type())
	}
	vals := make([]any, len(args)-1)
	for i, arg := range args[1:] {
		g, err := starctx.ToGo(arg)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", b.Name(), i+1, err)
		}
		if g == nil {
			g = "None"
		}
		vals[i] = formatArg{g}
	}
	return starlark.String(fmt.Sprintf(pattern, vals...)), nil
}

// iterate collects the elements of v. Strings yield their characters and
// undefined values yield nothing.
func iterate(name string, v starlark.Value) ([]starlark.Value, error) {
	if starctx.IsUndefined(v) {
		return nil, nil
	}
	if s, ok := v.(starlark.String); ok {
		var chars []starlark.Value
		for _, r := range string(s) {
			chars = append(chars, starlark.String(string(r)))
		}
		return chars, nil
	}

	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("%s: value of type %s is not iterable", name, v.Type())
	}
	defer iter.Done()

	var items []starlark.Value
	var item starlark.Value
	for iter.Next(&item) {
		items = append(items, item)
	}
	return items, nil
}

// getAttribute looks up an attribute or mapping key on v.
func getAttribute(v starlark.Value, name string) (starlark.Value, error) {
	if m, ok := v.(starlark.Mapping); ok {
		if item, found, err := m.Get(starlark.String(name)); err == nil && found {
			return item, nil
		}
	}
	if h, ok := v.(starlark.HasAttrs); ok {
		if attr, err := h.Attr(name); err == nil && attr != nil {
			return attr, nil
		}
	}
	return nil, fmt.Errorf("value of type %s has no attribute %q", v.Type(), name)
}

func testDefined(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(!starctx.IsUndefined(v)), nil
}

func testUndefined(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(starctx.IsUndefined(v)), nil
}

func testNone(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(v == starlark.None), nil
}

func testString(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	_, ok := v.(starlark.String)
	return starlark.Bool(ok), nil
}

func testNumber(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case starlark.Int, starlark.Float:
		return starlark.True, nil
	}
	return starlark.False, nil
}

// remainder returns v mod n for integer v.
func remainder(name string, v starlark.Value, n int64) (int64, error) {
	i, ok := v.(starlark.Int)
	if !ok {
		return 0, fmt.Errorf("%s: expected int, got %s", name, v.Type())
	}
	i64, ok := i.Int64()
	if !ok {
		return 0, fmt.Errorf("%s: int out of range", name)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: division by zero", name)
	}
	return i64 % n, nil
}

func testEven(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	r, err := remainder(b.Name(), v, 2)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(r == 0), nil
}

func testOdd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	v, err := unpackValue(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	r, err := remainder(b.Name(), v, 2)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(r != 0), nil
}

func testDivisibleBy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	v, err := unpackValue(b, args, kwargs, "num", &n)
	if err != nil {
		return nil, err
	}
	r, err := remainder(b.Name(), v, int64(n))
	if err != nil {
		return nil, err
	}
	return starlark.Bool(r == 0), nil
}
