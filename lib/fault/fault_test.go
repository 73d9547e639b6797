package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	cases := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"nil", nil, Unknown, ""},
		{"plain", base, Unknown, "connection refused"},
		{"tagged", New(Discovery, "introspect", "tezos", base), Discovery, "introspect [tezos]: connection refused"},
		{"wrapped", fmt.Errorf("init: %w", New(Query, "values", "", base)), Query, "init: values: connection refused"},
		{"formatted", Errorf(Invalid, "values", "a.b.c.d", "filter %q too short", "x"), Invalid, `values [a.b.c.d]: filter "x" too short`},
	}

	for _, c := range cases {
		assert.Equal(t, c.kind, KindOf(c.err), c.name)
		if c.err != nil {
			assert.Equal(t, c.msg, c.err.Error(), c.name)
		}
	}
}

func TestIs(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", New(CachePopulation, "populate", "k", base))

	assert.True(t, Is(err, CachePopulation))
	assert.False(t, Is(err, Query))
	assert.False(t, Is(nil, Unknown))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "cache_population", CachePopulation.String())
}
