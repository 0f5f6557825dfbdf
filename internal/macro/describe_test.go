package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeFile(t *testing.T) {
	src := `
def slug(s, sep="-", *parts, **opts):
    """Lowercase s and join words with sep.

    Extra words come from parts.
    """
    return sep.join(s.lower().split())

def pk(n, width=-1, tags=[]):
    return n

def _helper():
    pass

VERSION = 1
`
	ns, err := DescribeFile("/macros/text.star", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "text", ns.Name)
	require.Len(t, ns.Functions, 2)

	slug := ns.Functions[0]
	assert.Equal(t, `slug(s, sep="-", *parts, **opts)`, slug.Signature())
	assert.Equal(t, "Lowercase s and join words with sep.", slug.Summary())
	assert.Equal(t, 2, slug.Line)

	pk := ns.Functions[1]
	assert.Equal(t, "pk(n, width=-1, tags=[])", pk.Signature())
	assert.Empty(t, pk.Docstring)
}

func TestDescribeFile_SyntaxError(t *testing.T) {
	_, err := DescribeFile("bad.star", []byte("def broken(:\n"))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoader_Describe(t *testing.T) {
	dir := macrosDir(t, map[string]string{
		"b.star": "def two():\n    return 2\n",
		"a.star": "def one():\n    return 1\n",
	})

	namespaces, err := NewLoader(dir).Describe()
	require.NoError(t, err)
	require.Len(t, namespaces, 2)
	assert.Equal(t, "a", namespaces[0].Name)
	assert.Equal(t, "one()", namespaces[0].Functions[0].Signature())
	assert.Equal(t, "b", namespaces[1].Name)
}
