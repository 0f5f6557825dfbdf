// Package starlark provides the Starlark values and execution context used to
// evaluate template expressions against rows of input data.
package starlark

import (
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a Go value to a Starlark value.
// Maps become *Record so that templates can use dotted access (row.name).
// Supported types: string, integers, floats, bool, time.Time, []string, []any,
// map[string]any, map[any]any and values that already are starlark.Value.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case starlark.Value:
		return val, nil

	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int8:
		return starlark.MakeInt64(int64(val)), nil

	case int16:
		return starlark.MakeInt64(int64(val)), nil

	case int32:
		return starlark.MakeInt64(int64(val)), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case uint:
		return starlark.MakeUint(val), nil

	case uint8:
		return starlark.MakeUint64(uint64(val)), nil

	case uint16:
		return starlark.MakeUint64(uint64(val)), nil

	case uint32:
		return starlark.MakeUint64(uint64(val)), nil

	case uint64:
		return starlark.MakeUint64(val), nil

	case float32:
		return starlark.Float(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case time.Time:
		return starlark.String(formatTime(val)), nil

	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case []map[string]any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		return NewRecord(val)

	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = item
		}
		return NewRecord(m)

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Starlark value back to a Go value.
// Returns: string, int64, float64, bool, []any, map[string]any, or nil
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType, Undefined:
		return nil, nil

	case starlark.String:
		return string(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			// Fallback for very large integers - convert to string
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *Record:
		return ToGo(val.dict)

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %T", item[0])
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	default:
		// Try to get a string representation
		return val.String(), nil
	}
}

// ToString renders a value the way template output expects it:
// strings verbatim, undefined as empty, everything else by its Starlark repr.
func ToString(v starlark.Value) string {
	switch val := v.(type) {
	case nil:
		return ""
	case starlark.String:
		return string(val)
	case Undefined:
		return ""
	default:
		return val.String()
	}
}

// ContextToStarlark converts a render context into a StringDict of globals.
func ContextToStarlark(data map[string]any) (starlark.StringDict, error) {
	out := make(starlark.StringDict, len(data))
	for k, v := range data {
		sv, err := GoToStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("context key %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

// formatTime matches the str() form of YAML dates and timestamps.
func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// Record is a row of input data. It behaves like a read-only dict that also
// resolves its keys as attributes, so both row.name and row["name"] work.
// Missing attributes resolve to Undefined.
type Record struct {
	dict *starlark.Dict
}

var (
	_ starlark.HasAttrs        = (*Record)(nil)
	_ starlark.IterableMapping = (*Record)(nil)
	_ starlark.Sequence        = (*Record)(nil)
)

// NewRecord builds a record from a Go map. Keys are inserted in sorted order
// so that iteration is deterministic.
func NewRecord(m map[string]any) (*Record, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := starlark.NewDict(len(m))
	for _, k := range keys {
		sv, err := GoToStarlark(m[k])
		if err != nil {
			return nil, fmt.Errorf("dict key %q: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), sv); err != nil {
			return nil, fmt.Errorf("dict setkey %q: %w", k, err)
		}
	}
	return &Record{dict: dict}, nil
}

func (r *Record) String() string        { return r.dict.String() }
func (r *Record) Type() string          { return "record" }
func (r *Record) Freeze()               { r.dict.Freeze() }
func (r *Record) Truth() starlark.Bool  { return r.dict.Len() > 0 }
func (r *Record) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: record") }
func (r *Record) Len() int              { return r.dict.Len() }

// Iterate yields the record's keys.
func (r *Record) Iterate() starlark.Iterator { return r.dict.Iterate() }

// Items returns the key/value pairs of the record.
func (r *Record) Items() []starlark.Tuple { return r.dict.Items() }

// Get implements starlark.Mapping, so row["name"] and "name" in row work.
func (r *Record) Get(k starlark.Value) (starlark.Value, bool, error) {
	return r.dict.Get(k)
}

// Attr resolves a key first and falls back to dict methods (get, keys, items, values).
func (r *Record) Attr(name string) (starlark.Value, error) {
	if v, found, err := r.dict.Get(starlark.String(name)); err == nil && found {
		return v, nil
	}
	if m, err := r.dict.Attr(name); err == nil && m != nil {
		return m, nil
	}
	return Undefined{Name: name}, nil
}

// AttrNames lists record keys and the dict methods.
func (r *Record) AttrNames() []string {
	names := make([]string, 0, r.dict.Len())
	for _, k := range r.dict.Keys() {
		if s, ok := k.(starlark.String); ok {
			names = append(names, string(s))
		}
	}
	return append(names, r.dict.AttrNames()...)
}

// Undefined stands in for a name or field that has no value. It renders as
// the empty string and is falsy.
type Undefined struct {
	Name string
}

func (u Undefined) String() string        { return "" }
func (u Undefined) Type() string          { return "undefined" }
func (u Undefined) Freeze()               {}
func (u Undefined) Truth() starlark.Bool  { return false }
func (u Undefined) Hash() (uint32, error) { return 0, nil }

// IsUndefined reports whether v is an Undefined value.
func IsUndefined(v starlark.Value) bool {
	_, ok := v.(Undefined)
	return ok
}
