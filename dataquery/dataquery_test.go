package dataquery

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/chainquery/discovery"
	"github.com/tarancss/chainquery/lib/cache"
	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/fault"
	"github.com/tarancss/chainquery/lib/pool"
	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/lib/store/storetest"
	"github.com/tarancss/chainquery/metadata"
)

func column(name string) storetest.Column {
	return storetest.Column{Column: store.Column{Name: name, DataType: "text", NDistinct: 1, HasStats: true}}
}

func newService(t *testing.T) (*Service, *storetest.Fake) {
	t.Helper()

	hidden := false
	o := config.Overrides{"tezos": {Networks: map[string]config.NetworkOverride{"mainnet": {
		Entities: map[string]config.EntityOverride{
			"accounts": {Attributes: map[string]config.AttributeOverride{"secret": {Visible: &hidden}}},
			"internal": {Visible: &hidden},
		},
	}}}}

	f := storetest.New().
		AddTable("tz", storetest.Table{Name: "accounts", RowEstimate: 3,
			Columns: []storetest.Column{column("account_id"), column("balance"), column("secret")},
			Rows: []store.Row{
				{"account_id": "tz1a", "balance": "10", "secret": "s"},
				{"account_id": "tz1b", "balance": "20", "secret": "s"},
				{"account_id": "tz1c", "balance": "20", "secret": "s"},
			}}).
		AddTable("tz", storetest.Table{Name: "internal", Columns: []storetest.Column{column("x")}})

	platforms := []config.PlatformConfig{
		{Name: "tezos", Networks: []config.NetworkConfig{{Name: "mainnet", Schema: "tz"}}},
	}

	p := pool.New("test", 2)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	e := discovery.New(discovery.Config{Platforms: platforms, HighCardinalityLimit: 100, MaxResults: 50, Overrides: o},
		f, p, cache.New[string, discovery.ValueList]("dataquery_test", time.Minute), nil)
	require.NoError(t, e.Init(context.Background()))

	return New(metadata.New(e, o), f, p, config.QueryConfig{DefaultLimit: 2, MaxLimit: 10}), f
}

var accounts = EntityRef{Platform: "tezos", Network: "mainnet", Entity: "accounts"}

func TestRun(t *testing.T) {
	s, f := newService(t)
	ctx := context.Background()

	rows, err := s.Run(ctx, accounts, Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	q := f.Queries()[0]
	assert.Equal(t, "tz", q.Schema)
	assert.Equal(t, []string{"account_id", "balance"}, q.Fields)
	assert.Equal(t, 2, q.Limit)
	assert.NotContains(t, rows[0], "secret")

	rows, err = s.Run(ctx, accounts, Query{
		Fields:     []string{"account_id"},
		Predicates: []store.Predicate{{Field: "balance", Operation: store.OpEq, Set: []string{"20"}}},
		Limit:      500,
	})
	require.NoError(t, err)
	assert.Equal(t, []store.Row{{"account_id": "tz1b"}, {"account_id": "tz1c"}}, rows)
	assert.Equal(t, 10, f.Queries()[1].Limit)
}

func TestRunRejects(t *testing.T) {
	s, f := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		ref  EntityRef
		q    Query
		kind fault.Kind
	}{
		{"hidden field", accounts, Query{Fields: []string{"secret"}}, fault.Invalid},
		{"unknown predicate field", accounts,
			Query{Predicates: []store.Predicate{{Field: "nope", Operation: store.OpEq, Set: []string{"1"}}}}, fault.Invalid},
		{"unknown operation", accounts,
			Query{Predicates: []store.Predicate{{Field: "balance", Operation: "regex", Set: []string{"1"}}}}, fault.Invalid},
		{"unknown order field", accounts, Query{OrderBy: []store.OrderBy{{Field: "secret"}}}, fault.Invalid},
		{"bad direction", accounts, Query{OrderBy: []store.OrderBy{{Field: "balance", Direction: "up"}}}, fault.Invalid},
		{"negative limit", accounts, Query{Limit: -1}, fault.Invalid},
		{"hidden entity", EntityRef{"tezos", "mainnet", "internal"}, Query{}, fault.NotFound},
		{"unknown entity", EntityRef{"tezos", "mainnet", "nope"}, Query{}, fault.NotFound},
	}

	for _, c := range cases {
		_, err := s.Run(ctx, c.ref, c.q)
		assert.Equal(t, c.kind, fault.KindOf(err), c.name)
	}

	assert.Empty(t, f.Queries())
}

func TestRunStoreFailure(t *testing.T) {
	s, f := newService(t)

	f.Fail("tz.accounts", errors.New("connection reset"))

	_, err := s.Run(context.Background(), accounts, Query{})
	assert.True(t, fault.Is(err, fault.Query))

	f.Fail("tz.accounts", store.ErrBadQuery)

	_, err = s.Run(context.Background(), accounts, Query{})
	assert.True(t, fault.Is(err, fault.Invalid))
}

func TestParseValues(t *testing.T) {
	v := url.Values{
		"fields":  {"account_id, balance"},
		"limit":   {"5"},
		"orderBy": {"balance:desc,account_id"},
		"balance": {"20"},
		"kind":    {"a", "b"},
	}

	q, err := ParseValues(v)
	require.NoError(t, err)
	assert.Equal(t, Query{
		Fields: []string{"account_id", "balance"},
		Predicates: []store.Predicate{
			{Field: "balance", Operation: store.OpEq, Set: []string{"20"}},
			{Field: "kind", Operation: store.OpIn, Set: []string{"a", "b"}},
		},
		OrderBy: []store.OrderBy{{Field: "balance", Direction: "desc"}, {Field: "account_id"}},
		Limit:   5,
	}, q)

	_, err = ParseValues(url.Values{"limit": {"ten"}})
	assert.True(t, fault.Is(err, fault.Invalid))
}
