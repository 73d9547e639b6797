// Package dataquery runs validated, bounded entity queries against the backing store. Only the visible attributes of
// a visible entity can be selected, filtered or sorted on, and every query carries a limit.
package dataquery

import (
	"context"
	"errors"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/fault"
	"github.com/tarancss/chainquery/lib/pool"
	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/metadata"
)

// Operations accepted in predicates.
var operations = mapset.NewSet(
	store.OpEq, store.OpIn, store.OpLike, store.OpLt, store.OpGt, store.OpBetween,
	store.OpIsNull, store.OpStartsWith, store.OpEndsWith,
)

// EntityRef names the entity queried.
type EntityRef struct {
	Platform string
	Network  string
	Entity   string
}

func (r EntityRef) String() string {
	return r.Platform + "." + r.Network + "." + r.Entity
}

// Query is the client side description of an entity query. An empty Fields selects every visible attribute and a
// Limit of zero uses the default limit.
type Query struct {
	Fields     []string          `json:"fields"`
	Predicates []store.Predicate `json:"predicates"`
	OrderBy    []store.OrderBy   `json:"orderBy"`
	Limit      int               `json:"limit"`
}

// Metadata is the visible metadata queries are validated against.
type Metadata interface {
	ListAttributes(p, n, e string) ([]metadata.Attribute, error)
	Schema(p, n string) (string, error)
}

// Service runs entity queries on the worker pool.
type Service struct {
	meta    Metadata
	querier store.Querier
	pool    *pool.Pool
	conf    config.QueryConfig
}

// New returns a data query service.
func New(meta Metadata, q store.Querier, p *pool.Pool, conf config.QueryConfig) *Service {
	return &Service{meta: meta, querier: q, pool: p, conf: conf}
}

func invalid(ref EntityRef, format string, args ...interface{}) error {
	return fault.Errorf(fault.Invalid, "data query", ref.String(), format, args...)
}

// Run validates q and runs it on entity ref.
func (s *Service) Run(ctx context.Context, ref EntityRef, q Query) ([]store.Row, error) {
	attrs, err := s.meta.ListAttributes(ref.Platform, ref.Network, ref.Entity)
	if err != nil {
		return nil, err
	}

	schema, err := s.meta.Schema(ref.Platform, ref.Network)
	if err != nil {
		return nil, err
	}

	dq, err := s.build(ref, schema, attrs, q)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Run(ctx, s.pool, func(ctx context.Context) ([]store.Row, error) {
		return s.querier.Query(ctx, dq)
	})

	switch {
	case errors.Is(err, store.ErrBadQuery):
		return nil, fault.New(fault.Invalid, "data query", ref.String(), err)
	case err != nil:
		return nil, fault.New(fault.Query, "data query", ref.String(), err)
	}

	if rows == nil {
		rows = []store.Row{}
	}

	return rows, nil
}

func (s *Service) build(ref EntityRef, schema string, attrs []metadata.Attribute, q Query) (store.DataQuery, error) {
	visible := mapset.NewSetWithSize[string](len(attrs))
	all := make([]string, 0, len(attrs))

	for _, a := range attrs {
		visible.Add(a.Name)
		all = append(all, a.Name)
	}

	dq := store.DataQuery{Schema: schema, Table: ref.Entity, Fields: q.Fields, Predicates: q.Predicates,
		OrderBy: q.OrderBy, Limit: q.Limit}

	if len(dq.Fields) == 0 {
		dq.Fields = all
	}

	for _, f := range dq.Fields {
		if !visible.Contains(f) {
			return dq, invalid(ref, "unknown field %q", f)
		}
	}

	for _, p := range dq.Predicates {
		if !visible.Contains(p.Field) {
			return dq, invalid(ref, "unknown predicate field %q", p.Field)
		}

		if !operations.Contains(p.Operation) {
			return dq, invalid(ref, "unknown operation %q", p.Operation)
		}
	}

	for _, o := range dq.OrderBy {
		if !visible.Contains(o.Field) {
			return dq, invalid(ref, "unknown ordering field %q", o.Field)
		}

		if d := strings.ToLower(o.Direction); d != "" && d != "asc" && d != "desc" {
			return dq, invalid(ref, "unknown direction %q", o.Direction)
		}
	}

	switch {
	case dq.Limit < 0:
		return dq, invalid(ref, "negative limit")
	case dq.Limit == 0:
		dq.Limit = s.conf.DefaultLimit
	case dq.Limit > s.conf.MaxLimit:
		dq.Limit = s.conf.MaxLimit
	}

	return dq, nil
}

// ParseValues builds a Query from URL query parameters: "fields" (comma separated), "limit", "orderBy"
// (field[:asc|desc], comma separated) and any other parameter as an equality predicate on the attribute it names,
// or a set membership one when repeated.
func ParseValues(v url.Values) (Query, error) {
	var q Query

	for _, k := range slices.Sorted(maps.Keys(v)) {
		vals := v[k]

		switch k {
		case "fields":
			for _, f := range strings.Split(strings.Join(vals, ","), ",") {
				if f = strings.TrimSpace(f); f != "" {
					q.Fields = append(q.Fields, f)
				}
			}
		case "limit":
			n, err := strconv.Atoi(vals[0])
			if err != nil {
				return q, fault.Errorf(fault.Invalid, "data query", "", "limit must be a number")
			}

			q.Limit = n
		case "orderBy":
			for _, o := range strings.Split(strings.Join(vals, ","), ",") {
				field, dir, _ := strings.Cut(strings.TrimSpace(o), ":")
				if field != "" {
					q.OrderBy = append(q.OrderBy, store.OrderBy{Field: field, Direction: dir})
				}
			}
		default:
			op := store.OpEq
			if len(vals) > 1 {
				op = store.OpIn
			}

			q.Predicates = append(q.Predicates, store.Predicate{Field: k, Operation: op, Set: vals})
		}
	}

	return q, nil
}
