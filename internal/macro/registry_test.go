package macro

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(&LoadedModule{
		Namespace: "sql",
		Path:      "/macros/sql.star",
		Exports:   starlark.StringDict{"q": starlark.String("func")},
	})
	require.NoError(t, err)

	assert.True(t, registry.Has("sql"))
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, "/macros/sql.star", registry.Get("sql").Path)
	assert.Nil(t, registry.Get("missing"))
}

func TestRegistry_ReservedNamespace(t *testing.T) {
	for _, reserved := range ReservedNamespaces {
		t.Run(reserved, func(t *testing.T) {
			err := NewRegistry().Register(&LoadedModule{Namespace: reserved, Exports: starlark.StringDict{}})

			var regErr *RegistryError
			require.ErrorAs(t, err, &regErr)
			assert.Equal(t, reserved, regErr.Namespace)
		})
	}
}

func TestRegistry_DuplicateNamespace(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&LoadedModule{Namespace: "utils", Path: "/a/utils.star"}))

	err := registry.Register(&LoadedModule{Namespace: "utils", Path: "/b/utils.star"})
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	assert.Contains(t, regErr.Error(), "/a/utils.star")
}

func TestRegistry_RegisterAll_StopsOnError(t *testing.T) {
	registry := NewRegistry()

	err := registry.RegisterAll([]*LoadedModule{
		{Namespace: "keys"},
		{Namespace: "batch"},
		{Namespace: "utils"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_Namespaces(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.RegisterAll([]*LoadedModule{
		{Namespace: "zeta"}, {Namespace: "alpha"}, {Namespace: "beta"},
	}))

	assert.Equal(t, []string{"alpha", "beta", "zeta"}, registry.Namespaces())
}

func TestRegistry_ToStarlarkDict(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&LoadedModule{
		Namespace: "utils",
		Exports: starlark.StringDict{
			"greet": starlark.String("hello_func"),
			"add":   starlark.String("add_func"),
		},
	}))

	dict := registry.ToStarlarkDict()
	require.Len(t, dict, 1)

	mod, ok := dict["utils"].(starlark.HasAttrs)
	require.True(t, ok, "expected HasAttrs, got %T", dict["utils"])

	greet, err := mod.Attr("greet")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("hello_func"), greet)
	assert.ElementsMatch(t, []string{"add", "greet"}, mod.AttrNames())
	assert.Equal(t, "module", dict["utils"].Type())
}

func TestLoadAndRegister(t *testing.T) {
	registry, err := LoadAndRegister(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, 0, registry.Len())

	dir := macrosDir(t, map[string]string{"batch.star": "x = 1"})
	_, err = LoadAndRegister(dir)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
}

func TestGlobals(t *testing.T) {
	globals, err := Globals("", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, globals)

	dir := macrosDir(t, map[string]string{"sql.star": "def q(s):\n    return \"'\" + s + \"'\"\n"})
	globals, err = Globals(dir, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, globals, "sql")
}
