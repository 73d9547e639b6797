package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingKey(t *testing.T) {
	cases := map[string]string{
		"":                                       "usage",
		"/":                                      "usage",
		"/v2/metadata/platforms":                 "usage.v2.metadata.platforms",
		"/v2/data/{platform}/{network}/{entity}": "usage.v2.data.platform.network.entity",
	}

	for route, want := range cases {
		assert.Equal(t, want, RoutingKey(route), route)
	}
}
