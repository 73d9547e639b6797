package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tree(p, n, e, a string, estimate int64) Platform {
	return Platform{Name: p, Networks: []Network{{Name: n, Platform: p, Entities: []Entity{
		{Name: e, Attributes: []Attribute{{Name: a, DistinctEstimate: estimate}}},
	}}}}
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "tezos.mainnet.operations.kind", Path{"tezos", "mainnet", "operations", "kind"}.String())
	assert.Equal(t, `a.b\.c.d.e`, Path{"a", "b.c", "d", "e"}.String())
	assert.Equal(t, `a\\.b.c.d`, Path{`a\`, "b", "c", "d"}.String())

	assert.NotEqual(t, Path{"a", "b.c", "d", "e"}.String(), Path{"a.b", "c", "d", "e"}.String())
	assert.NotEqual(t, Path{"a", "b", "c.d", "e"}.String(), Path{"a", "b", "c", "d.e"}.String())
	assert.NotEqual(t, Path{`a\`, "b", "c", "d"}.String(), Path{"a", `\b`, "c", "d"}.String())
}

func TestGraphDottedNames(t *testing.T) {
	g := newGraph([]Platform{tree("a", "b.c", "d", "e", 1), tree("a.b", "c", "d", "e", 2)})

	a, ok := find[Attribute](g, Path{"a", "b.c", "d", "e"})
	require.True(t, ok)
	assert.Equal(t, int64(1), a.DistinctEstimate)

	a, ok = find[Attribute](g, Path{"a.b", "c", "d", "e"})
	require.True(t, ok)
	assert.Equal(t, int64(2), a.DistinctEstimate)

	n, ok := find[Network](g, Path{Platform: "a.b", Network: "c"})
	require.True(t, ok)
	assert.Equal(t, "a.b", n.Platform)

	_, ok = find[Network](g, Path{Platform: "a", Network: "b"})
	assert.False(t, ok)

	// a path one level short never resolves to the wrong kind
	_, ok = find[Attribute](g, Path{Platform: "a", Network: "b.c", Entity: "d"})
	assert.False(t, ok)
}
