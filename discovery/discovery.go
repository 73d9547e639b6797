// Package discovery builds the platform, network, entity and attribute graph by introspecting the backing store and
// serves the bounded attribute value listings, cached or live depending on the attribute cardinality.
package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tarancss/chainquery/lib/cache"
	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/fault"
	"github.com/tarancss/chainquery/lib/pool"
	"github.com/tarancss/chainquery/lib/store"
)

// ErrAlreadyInitialized is returned by a second call to Init.
var ErrAlreadyInitialized = errors.New("discovery engine already initialized")

// Config holds the engine settings.
type Config struct {
	Platforms []config.PlatformConfig
	// HighCardinalityLimit is the distinct value estimate above which an attribute is High.
	HighCardinalityLimit int
	// MaxResults caps every value list unless an override sets another cap.
	MaxResults int
	Overrides  config.Overrides
}

// Engine discovers the metadata graph once and serves attribute values.
type Engine struct {
	conf   Config
	store  store.Introspector
	pool   *pool.Pool
	values *cache.Cache[string, ValueList]
	log    *slog.Logger

	mu sync.RWMutex
	g  *graph
}

// New returns an engine introspecting st on p and caching values in values. Init must be called before use.
func New(conf Config, st store.Introspector, p *pool.Pool, values *cache.Cache[string, ValueList],
	log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{conf: conf, store: st, pool: p, values: values, log: log}
}

// Init introspects every configured platform, concurrently on the worker pool. A platform any of whose networks
// fails is left out of the graph and logged. Init only fails when every platform failed.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.g != nil {
		return ErrAlreadyInitialized
	}

	tasks := make([]*pool.Task[Platform], len(e.conf.Platforms))

	for i, pc := range e.conf.Platforms {
		tasks[i] = pool.Submit(ctx, e.pool, func(ctx context.Context) (Platform, error) {
			return e.discoverPlatform(ctx, pc)
		})
	}

	var (
		platforms []Platform
		merr      *multierror.Error
		failed    int
	)

	for i, t := range tasks {
		p, err := t.Wait(ctx)
		if err != nil {
			name := e.conf.Platforms[i].Name
			e.log.Error("Platform discovery failed, platform omitted", slog.String("platform", name),
				slog.Any("error", err))
			merr = multierror.Append(merr, fault.New(fault.Discovery, "discover platform", name, err))
			failed++

			continue
		}

		platforms = append(platforms, p)
	}

	if len(platforms) == 0 {
		return fault.New(fault.Discovery, "discover", "", merr.ErrorOrNil())
	}

	e.g = newGraph(platforms)
	e.log.Info("Discovery complete", slog.Int("platforms", len(platforms)), slog.Int("failed", failed))

	return nil
}

func (e *Engine) discoverPlatform(ctx context.Context, pc config.PlatformConfig) (Platform, error) {
	p := Platform{Name: pc.Name, DisplayName: pc.DisplayName}

	for _, nc := range pc.Networks {
		n, err := e.discoverNetwork(ctx, pc.Name, nc)
		if err != nil {
			return Platform{}, err
		}

		p.Networks = append(p.Networks, n)
	}

	return p, nil
}

func (e *Engine) discoverNetwork(ctx context.Context, platform string, nc config.NetworkConfig) (Network, error) {
	n := Network{Name: nc.Name, DisplayName: nc.DisplayName, Platform: platform, Schema: nc.Schema}

	tables, err := e.store.Tables(ctx, nc.Schema)
	if err != nil {
		return Network{}, err
	}

	for _, t := range tables {
		cols, err := e.store.Columns(ctx, nc.Schema, t.Name)
		if err != nil {
			return Network{}, err
		}

		ent := Entity{Name: t.Name, RowEstimate: t.RowEstimate}

		for _, c := range cols {
			est, err := e.estimate(ctx, nc.Schema, t, c)
			if err != nil {
				return Network{}, err
			}

			card := Low
			if est > int64(e.conf.HighCardinalityLimit) {
				card = High
			}

			ent.Attributes = append(ent.Attributes, Attribute{
				Name: c.Name, DataType: c.DataType, DistinctEstimate: est, Cardinality: card,
			})
		}

		n.Entities = append(n.Entities, ent)
	}

	return n, nil
}

// estimate returns the distinct value estimate of column c. Planner statistics are used when present, a negative
// n_distinct being a fraction of the row estimate. Otherwise, or when the table has no row estimate to scale the
// fraction by, the distinct values are counted, up to just past the high cardinality limit.
func (e *Engine) estimate(ctx context.Context, schema string, t store.Table, c store.Column) (int64, error) {
	switch {
	case c.HasStats && c.NDistinct > 0:
		return int64(c.NDistinct), nil
	case c.HasStats && c.NDistinct < 0 && t.RowEstimate > 0:
		return int64(-c.NDistinct * float64(t.RowEstimate)), nil
	}

	return e.store.CountDistinct(ctx, schema, t.Name, c.Name, e.conf.HighCardinalityLimit+1)
}

func (e *Engine) graph() *graph {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.g
}

// Platforms returns the discovered platforms in configuration order. The result must not be modified.
func (e *Engine) Platforms() []Platform {
	if g := e.graph(); g != nil {
		return g.platforms
	}

	return nil
}

// Platform returns the platform named name.
func (e *Engine) Platform(name string) (Platform, bool) {
	return find[Platform](e.graph(), Path{Platform: name})
}

// Network returns network n of platform p.
func (e *Engine) Network(p, n string) (Network, bool) {
	return find[Network](e.graph(), Path{Platform: p, Network: n})
}

// Entity returns entity en of network n.
func (e *Engine) Entity(p, n, en string) (Entity, bool) {
	return find[Entity](e.graph(), Path{Platform: p, Network: n, Entity: en})
}

// Attribute returns the attribute at path.
func (e *Engine) Attribute(path Path) (Attribute, bool) {
	return find[Attribute](e.graph(), path)
}
