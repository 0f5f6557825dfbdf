package starlark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestGoToStarlark(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantStr string
		wantErr bool
	}{
		{name: "string", input: "hello", wantStr: `"hello"`},
		{name: "int", input: 42, wantStr: "42"},
		{name: "int64", input: int64(123456789), wantStr: "123456789"},
		{name: "uint8", input: uint8(7), wantStr: "7"},
		{name: "float64", input: 3.14, wantStr: "3.14"},
		{name: "bool true", input: true, wantStr: "True"},
		{name: "bool false", input: false, wantStr: "False"},
		{name: "nil", input: nil, wantStr: "None"},
		{name: "string slice", input: []string{"a", "b", "c"}, wantStr: `["a", "b", "c"]`},
		{name: "any slice", input: []any{"x", 1, true}, wantStr: `["x", 1, True]`},
		{name: "date", input: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), wantStr: `"2024-03-01"`},
		{name: "timestamp", input: time.Date(2024, 3, 1, 13, 4, 5, 0, time.UTC), wantStr: `"2024-03-01 13:04:05"`},
		{name: "map", input: map[string]any{"b": 2, "a": "x"}, wantStr: `{"a": "x", "b": 2}`},
		{name: "any-keyed map", input: map[any]any{1: "one"}, wantStr: `{"1": "one"}`},
		{name: "unsupported", input: struct{}{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GoToStarlark(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStr, got.String())
		})
	}
}

func TestToGo(t *testing.T) {
	rec, err := NewRecord(map[string]any{"id": 1, "tags": []any{"a"}})
	require.NoError(t, err)

	got, err := ToGo(rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(1), "tags": []any{"a"}}, got)

	got, err = ToGo(Undefined{Name: "x"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ToGo(starlark.Tuple{starlark.String("a"), starlark.MakeInt(2)})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", int64(2)}, got)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "plain", ToString(starlark.String("plain")))
	assert.Equal(t, "", ToString(Undefined{Name: "missing"}))
	assert.Equal(t, "None", ToString(starlark.None))
	assert.Equal(t, "True", ToString(starlark.True))
	assert.Equal(t, "12", ToString(starlark.MakeInt(12)))
}

func TestRecord_Access(t *testing.T) {
	rec, err := NewRecord(map[string]any{
		"name":  "alice",
		"inner": map[string]any{"city": "Prague"},
	})
	require.NoError(t, err)

	v, err := rec.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("alice"), v)

	inner, err := rec.Attr("inner")
	require.NoError(t, err)
	innerRec, ok := inner.(*Record)
	require.True(t, ok, "nested maps should convert to records, got %T", inner)
	city, err := innerRec.Attr("city")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("Prague"), city)

	missing, err := rec.Attr("nope")
	require.NoError(t, err)
	assert.True(t, IsUndefined(missing))

	keys, err := rec.Attr("keys")
	require.NoError(t, err)
	_, ok = keys.(*starlark.Builtin)
	assert.True(t, ok, "dict methods should remain reachable")

	_, found, err := rec.Get(starlark.String("name"))
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = rec.Get(starlark.String("nope"))
	require.NoError(t, err)
	assert.False(t, found, "item lookup must stay honest for the in operator")

	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, starlark.Bool(true), rec.Truth())
}

func TestUndefined(t *testing.T) {
	u := Undefined{Name: "x"}
	assert.Equal(t, "", u.String())
	assert.Equal(t, starlark.Bool(false), u.Truth())
	assert.Equal(t, "undefined", u.Type())
}
