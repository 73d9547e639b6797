package discovery

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/fault"
	"github.com/tarancss/chainquery/lib/pool"
	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/lib/util"
)

// Policy returns the effective values policy of the attribute at path.
func (e *Engine) Policy(path Path) config.ValuesPolicy {
	return e.conf.Overrides.Values(path.Platform, path.Network, path.Entity, path.Attribute, e.conf.MaxResults)
}

// InitAttributesCache caches the values of every Low attribute whose caching is not disabled. Failures are logged
// and returned together once every attribute has been tried.
func (e *Engine) InitAttributesCache(ctx context.Context) error {
	g := e.graph()
	if g == nil {
		return fault.Errorf(fault.CachePopulation, "init attributes cache", "", "engine not initialized")
	}

	var (
		mu   sync.Mutex
		merr *multierror.Error
		n    int
		bad  int
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.pool.Size())

	for _, p := range g.platforms {
		for _, nw := range p.Networks {
			for _, ent := range nw.Entities {
				for _, a := range ent.Attributes {
					path := Path{p.Name, nw.Name, ent.Name, a.Name}

					pol := e.Policy(path)
					if a.Cardinality != Low || !pol.Cached {
						continue
					}

					n++
					schema := nw.Schema

					eg.Go(func() error {
						if _, err := e.cachedValues(ctx, path, schema, pol.MaxResults); err != nil {
							e.log.Warn("Attribute values not cached", slog.String("key", path.String()),
								slog.Any("error", err))

							mu.Lock()
							merr = multierror.Append(merr, err)
							bad++
							mu.Unlock()
						}

						// never cancel the other attributes
						return nil
					})
				}
			}
		}
	}

	_ = eg.Wait()

	e.log.Info("Attribute values cache warmed up", slog.Int("attributes", n), slog.Int("failed", bad))

	return merr.ErrorOrNil()
}

// cachedValues keeps at most limit values, fetching one more to learn whether the list is complete.
func (e *Engine) cachedValues(ctx context.Context, path Path, schema string, limit int) (ValueList, error) {
	return e.values.GetOrPopulate(ctx, path.String(), func(ctx context.Context) (ValueList, error) {
		vals, err := e.fetch(ctx, path, schema, "", limit+1)
		if err != nil {
			return ValueList{}, err
		}

		if len(vals) > limit {
			return ValueList{Values: vals[:limit:limit], Truncated: true}, nil
		}

		return ValueList{Values: vals}, nil
	})
}

func (e *Engine) fetch(ctx context.Context, path Path, schema, filter string, limit int) ([]string, error) {
	return pool.Run(ctx, e.pool, func(ctx context.Context) ([]string, error) {
		return e.store.DistinctValues(ctx, store.ValuesQuery{
			Schema: schema, Table: path.Entity, Column: path.Attribute, Filter: filter, Limit: limit,
		})
	})
}

// AttributeValues returns at most the attribute's cap of distinct values, restricted to those containing filter
// (case-insensitive) when it is not empty. Low attributes with caching enabled are served from the cache, other
// attributes by a bounded live query that is never cached. A cached list that was truncated cannot be filtered in
// memory and is filtered by a live query too.
func (e *Engine) AttributeValues(ctx context.Context, path Path, filter string) ([]string, error) {
	a, ok := e.Attribute(path)
	if !ok {
		return nil, fault.Errorf(fault.NotFound, "attribute values", path.String(), "unknown attribute")
	}

	nw, _ := e.Network(path.Platform, path.Network)
	pol := e.Policy(path)

	if filter != "" && utf8.RuneCountInString(filter) < pol.MinMatchLength {
		return nil, fault.Errorf(fault.Invalid, "attribute values", path.String(),
			"filter must have at least %d characters", pol.MinMatchLength)
	}

	if a.Cardinality == Low && pol.Cached {
		list, err := e.cachedValues(ctx, path, nw.Schema, pol.MaxResults)
		if err != nil {
			return nil, err
		}

		switch {
		case filter == "":
			return slices.Clone(list.Values), nil
		case !list.Truncated:
			res := make([]string, 0)

			for _, v := range list.Values {
				if util.ContainsFold(v, filter) {
					res = append(res, v)
				}
			}

			return res, nil
		}
	}

	vals, err := e.fetch(ctx, path, nw.Schema, filter, pol.MaxResults)
	if err != nil {
		return nil, fault.New(fault.Query, "attribute values", path.String(), err)
	}

	if len(vals) > pol.MaxResults {
		vals = vals[:pol.MaxResults]
	}

	return vals, nil
}
