package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	cases := []struct{ in, out string }{
		{"tz1", "tz1"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`c:\x`, `c:\\x`},
	}

	for _, c := range cases {
		assert.Equal(t, c.out, EscapeLike(c.in), c.in)
	}
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Transaction", "SACT"))
	assert.True(t, ContainsFold("anything", ""))
	assert.False(t, ContainsFold("endorsement", "origination"))
}
