// Package storetest provides an in-memory store.DB for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/lib/util"
)

// Column describes a fake column. Values are its distinct values; when Generated is set the column instead holds
// Generated distinct values "v0000000", "v0000001", ... produced on demand.
type Column struct {
	store.Column
	Values    []string
	Generated int
}

// Table is a fake table.
type Table struct {
	Name        string
	RowEstimate int64
	Columns     []Column
	Rows        []store.Row
}

// Fake is safe for concurrent use. Errors set in Fail make the calls touching that schema, or that
// "schema.table.column", fail.
type Fake struct {
	mu      sync.Mutex
	schemas map[string][]Table
	fail    map[string]error
	keys    []string
	keysErr error
	calls   map[string]int
	queries []store.DataQuery
}

var _ store.DB = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{schemas: map[string][]Table{}, fail: map[string]error{}, calls: map[string]int{}}
}

// AddTable adds t to schema.
func (f *Fake) AddTable(schema string, t Table) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.schemas[schema] = append(f.schemas[schema], t)

	return f
}

// Fail makes calls on target fail with err, or succeed again when err is nil.
func (f *Fake) Fail(target string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.fail, target)
	} else {
		f.fail[target] = err
	}

	return f
}

// SetKeys sets the API keys returned by APIKeys, or the error it fails with.
func (f *Fake) SetKeys(keys []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys, f.keysErr = keys, err
}

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[method]
}

// Queries returns the data queries received.
func (f *Fake) Queries() []store.DataQuery {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]store.DataQuery(nil), f.queries...)
}

func (f *Fake) enter(method string, targets ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[method]++

	for _, t := range targets {
		if err := f.fail[t]; err != nil {
			return err
		}
	}

	return nil
}

func (f *Fake) table(schema, name string) (Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.schemas[schema] {
		if t.Name == name {
			return t, nil
		}
	}

	return Table{}, fmt.Errorf("relation %s.%s does not exist", schema, name)
}

func (f *Fake) column(schema, table, name string) (Column, error) {
	t, err := f.table(schema, table)
	if err != nil {
		return Column{}, err
	}

	for _, c := range t.Columns {
		if c.Name == name {
			return c, nil
		}
	}

	return Column{}, fmt.Errorf("column %s does not exist", name)
}

// Tables implements store.Introspector.
func (f *Fake) Tables(ctx context.Context, schema string) ([]store.Table, error) {
	if err := f.enter("Tables", schema); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ts := make([]store.Table, 0, len(f.schemas[schema]))
	for _, t := range f.schemas[schema] {
		ts = append(ts, store.Table{Name: t.Name, RowEstimate: t.RowEstimate})
	}

	return ts, nil
}

// Columns implements store.Introspector.
func (f *Fake) Columns(ctx context.Context, schema, table string) ([]store.Column, error) {
	if err := f.enter("Columns", schema, schema+"."+table); err != nil {
		return nil, err
	}

	t, err := f.table(schema, table)
	if err != nil {
		return nil, err
	}

	cs := make([]store.Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		cs = append(cs, c.Column)
	}

	return cs, nil
}

// CountDistinct implements store.Introspector.
func (f *Fake) CountDistinct(ctx context.Context, schema, table, column string, limit int) (int64, error) {
	if err := f.enter("CountDistinct", schema, schema+"."+table+"."+column); err != nil {
		return 0, err
	}

	c, err := f.column(schema, table, column)
	if err != nil {
		return 0, err
	}

	n := len(c.Values)
	if c.Generated > 0 {
		n = c.Generated
	}

	if n > limit {
		n = limit
	}

	return int64(n), nil
}

// DistinctValues implements store.Introspector.
func (f *Fake) DistinctValues(ctx context.Context, q store.ValuesQuery) ([]string, error) {
	if err := f.enter("DistinctValues", q.Schema, q.Schema+"."+q.Table+"."+q.Column); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := f.column(q.Schema, q.Table, q.Column)
	if err != nil {
		return nil, err
	}

	res := make([]string, 0, q.Limit)

	if c.Generated > 0 {
		for i := 0; i < c.Generated && len(res) < q.Limit; i++ {
			v := fmt.Sprintf("v%07d", i)
			if q.Filter == "" || util.ContainsFold(v, q.Filter) {
				res = append(res, v)
			}
		}

		return res, nil
	}

	vals := append([]string(nil), c.Values...)
	sort.Strings(vals)

	for _, v := range vals {
		if len(res) == q.Limit {
			break
		}

		if q.Filter == "" || util.ContainsFold(v, q.Filter) {
			res = append(res, v)
		}
	}

	return res, nil
}

// Query implements store.Querier. Only eq predicates are evaluated, the others match every row.
func (f *Fake) Query(ctx context.Context, q store.DataQuery) ([]store.Row, error) {
	if err := f.enter("Query", q.Schema, q.Schema+"."+q.Table); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	t, err := f.table(q.Schema, q.Table)
	if err != nil {
		return nil, err
	}

	var res []store.Row

	for _, r := range t.Rows {
		if len(res) == q.Limit {
			break
		}

		if matches(r, q.Predicates) {
			res = append(res, project(r, q.Fields))
		}
	}

	return res, nil
}

func matches(r store.Row, ps []store.Predicate) bool {
	for _, p := range ps {
		if p.Operation != store.OpEq || len(p.Set) != 1 {
			continue
		}

		eq := fmt.Sprint(r[p.Field]) == p.Set[0]
		if eq == p.Inverse {
			return false
		}
	}

	return true
}

func project(r store.Row, fields []string) store.Row {
	if len(fields) == 0 {
		return r
	}

	out := make(store.Row, len(fields))
	for _, f := range fields {
		out[f] = r[f]
	}

	return out
}

// APIKeys implements store.KeySource.
func (f *Fake) APIKeys(ctx context.Context) ([]string, error) {
	if err := f.enter("APIKeys"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.keys...), f.keysErr
}

// Ping implements store.DB.
func (f *Fake) Ping(ctx context.Context) error {
	return f.enter("Ping", "ping")
}

// Close implements store.DB.
func (f *Fake) Close() error {
	return nil
}
