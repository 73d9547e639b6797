// Package metadata is the read-only view of the discovered metadata served to clients. Configured overrides hide,
// rename, describe and reorder platforms, networks, entities and attributes, and unit transformations rescale or
// relabel attribute values. Both are applied on every call, so the discovered graph and the values cache are never
// altered by them.
package metadata

import (
	"context"
	"sort"

	"github.com/tarancss/chainquery/discovery"
	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/fault"
)

// Platform as presented to clients.
type Platform struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description,omitempty"`
	DisplayOrder *int   `json:"displayOrder,omitempty"`
}

// Network as presented to clients.
type Network struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Platform     string `json:"platform"`
	Description  string `json:"description,omitempty"`
	DisplayOrder *int   `json:"displayOrder,omitempty"`
}

// Entity as presented to clients.
type Entity struct {
	Name              string `json:"name"`
	DisplayName       string `json:"displayName"`
	DisplayNamePlural string `json:"displayNamePlural,omitempty"`
	Platform          string `json:"platform"`
	Network           string `json:"network"`
	Count             int64  `json:"count"`
	Description       string `json:"description,omitempty"`
	DisplayOrder      *int   `json:"displayOrder,omitempty"`
}

// Attribute as presented to clients.
type Attribute struct {
	Name           string                `json:"name"`
	DisplayName    string                `json:"displayName"`
	Platform       string                `json:"platform"`
	Network        string                `json:"network"`
	Entity         string                `json:"entity"`
	DataType       string                `json:"dataType"`
	Cardinality    discovery.Cardinality `json:"cardinality"`
	Description    string                `json:"description,omitempty"`
	DisplayOrder   *int                  `json:"displayOrder,omitempty"`
	Scale          int                   `json:"scale,omitempty"`
	CurrencySymbol string                `json:"currencySymbol,omitempty"`
	DataFormat     string                `json:"dataFormat,omitempty"`
	ValueLabels    map[string]string     `json:"valueLabels,omitempty"`
	Cached         bool                  `json:"cached"`
	MaxResults     int                   `json:"maxResults"`
}

// Engine is the discovered metadata the service presents.
type Engine interface {
	Platforms() []discovery.Platform
	Platform(name string) (discovery.Platform, bool)
	Network(p, n string) (discovery.Network, bool)
	Entity(p, n, e string) (discovery.Entity, bool)
	Attribute(path discovery.Path) (discovery.Attribute, bool)
	Policy(path discovery.Path) config.ValuesPolicy
	AttributeValues(ctx context.Context, path discovery.Path, filter string) ([]string, error)
}

// Service applies the overrides to what Engine discovered.
type Service struct {
	engine    Engine
	overrides config.Overrides
}

// New returns a Service presenting e with overrides o.
func New(e Engine, o config.Overrides) *Service {
	return &Service{engine: e, overrides: o}
}

func notFound(op, key string) error {
	return fault.Errorf(fault.NotFound, op, key, "not found")
}

func or(s, def string) string {
	if s != "" {
		return s
	}

	return def
}

// sortByDisplayOrder sorts items with a display order first, ascending, keeping the discovery order otherwise.
func sortByDisplayOrder[T any](items []T, order func(T) *int) {
	sort.SliceStable(items, func(i, j int) bool {
		oi, oj := order(items[i]), order(items[j])

		switch {
		case oi == nil:
			return false
		case oj == nil:
			return true
		}

		return *oi < *oj
	})
}

func (s *Service) platform(p string) (discovery.Platform, config.PlatformOverride, bool) {
	dp, ok := s.engine.Platform(p)
	if !ok {
		return dp, config.PlatformOverride{}, false
	}

	po := s.overrides.Platform(p)

	return dp, po, config.IsVisible(po.Visible)
}

func (s *Service) network(p, n string) (discovery.Network, config.NetworkOverride, bool) {
	if _, _, ok := s.platform(p); !ok {
		return discovery.Network{}, config.NetworkOverride{}, false
	}

	dn, ok := s.engine.Network(p, n)
	if !ok {
		return dn, config.NetworkOverride{}, false
	}

	no := s.overrides.Network(p, n)

	return dn, no, config.IsVisible(no.Visible)
}

func (s *Service) entity(p, n, e string) (discovery.Entity, config.EntityOverride, bool) {
	if _, _, ok := s.network(p, n); !ok {
		return discovery.Entity{}, config.EntityOverride{}, false
	}

	de, ok := s.engine.Entity(p, n, e)
	if !ok {
		return de, config.EntityOverride{}, false
	}

	eo := s.overrides.Entity(p, n, e)

	return de, eo, config.IsVisible(eo.Visible)
}

// ListPlatforms returns the visible platforms.
func (s *Service) ListPlatforms() []Platform {
	res := make([]Platform, 0)

	for _, dp := range s.engine.Platforms() {
		po := s.overrides.Platform(dp.Name)
		if !config.IsVisible(po.Visible) {
			continue
		}

		res = append(res, Platform{
			Name:         dp.Name,
			DisplayName:  or(po.DisplayName, or(dp.DisplayName, dp.Name)),
			Description:  po.Description,
			DisplayOrder: po.DisplayOrder,
		})
	}

	sortByDisplayOrder(res, func(p Platform) *int { return p.DisplayOrder })

	return res
}

// ListNetworks returns the visible networks of platform p.
func (s *Service) ListNetworks(p string) ([]Network, error) {
	dp, _, ok := s.platform(p)
	if !ok {
		return nil, notFound("list networks", p)
	}

	res := make([]Network, 0, len(dp.Networks))

	for _, dn := range dp.Networks {
		no := s.overrides.Network(p, dn.Name)
		if !config.IsVisible(no.Visible) {
			continue
		}

		res = append(res, Network{
			Name:         dn.Name,
			DisplayName:  or(no.DisplayName, or(dn.DisplayName, dn.Name)),
			Platform:     p,
			Description:  no.Description,
			DisplayOrder: no.DisplayOrder,
		})
	}

	sortByDisplayOrder(res, func(n Network) *int { return n.DisplayOrder })

	return res, nil
}

// ListEntities returns the visible entities of network n.
func (s *Service) ListEntities(p, n string) ([]Entity, error) {
	dn, _, ok := s.network(p, n)
	if !ok {
		return nil, notFound("list entities", p+"."+n)
	}

	res := make([]Entity, 0, len(dn.Entities))

	for _, de := range dn.Entities {
		eo := s.overrides.Entity(p, n, de.Name)
		if !config.IsVisible(eo.Visible) {
			continue
		}

		res = append(res, Entity{
			Name:              de.Name,
			DisplayName:       or(eo.DisplayName, de.Name),
			DisplayNamePlural: eo.DisplayNamePlural,
			Platform:          p,
			Network:           n,
			Count:             de.RowEstimate,
			Description:       eo.Description,
			DisplayOrder:      eo.DisplayOrder,
		})
	}

	sortByDisplayOrder(res, func(e Entity) *int { return e.DisplayOrder })

	return res, nil
}

func (s *Service) attribute(path discovery.Path, da discovery.Attribute) Attribute {
	ao := s.overrides.Attribute(path.Platform, path.Network, path.Entity, path.Attribute)
	pol := s.engine.Policy(path)

	return Attribute{
		Name:           da.Name,
		DisplayName:    or(ao.DisplayName, da.Name),
		Platform:       path.Platform,
		Network:        path.Network,
		Entity:         path.Entity,
		DataType:       da.DataType,
		Cardinality:    da.Cardinality,
		Description:    ao.Description,
		DisplayOrder:   ao.DisplayOrder,
		Scale:          ao.Scale,
		CurrencySymbol: ao.CurrencySymbol,
		DataFormat:     ao.DataFormat,
		ValueLabels:    ao.ValueLabels,
		Cached:         pol.Cached && da.Cardinality == discovery.Low,
		MaxResults:     pol.MaxResults,
	}
}

// ListAttributes returns the visible attributes of entity e.
func (s *Service) ListAttributes(p, n, e string) ([]Attribute, error) {
	de, _, ok := s.entity(p, n, e)
	if !ok {
		return nil, notFound("list attributes", p+"."+n+"."+e)
	}

	res := make([]Attribute, 0, len(de.Attributes))

	for _, da := range de.Attributes {
		path := discovery.Path{Platform: p, Network: n, Entity: e, Attribute: da.Name}
		if !config.IsVisible(s.overrides.Attribute(p, n, e, da.Name).Visible) {
			continue
		}

		res = append(res, s.attribute(path, da))
	}

	sortByDisplayOrder(res, func(a Attribute) *int { return a.DisplayOrder })

	return res, nil
}

// Attribute returns the visible attribute at path.
func (s *Service) Attribute(path discovery.Path) (Attribute, error) {
	if _, _, ok := s.entity(path.Platform, path.Network, path.Entity); !ok {
		return Attribute{}, notFound("attribute", path.String())
	}

	da, ok := s.engine.Attribute(path)
	if !ok || !config.IsVisible(s.overrides.Attribute(path.Platform, path.Network, path.Entity, path.Attribute).Visible) {
		return Attribute{}, notFound("attribute", path.String())
	}

	return s.attribute(path, da), nil
}

// AttributeValues returns the bounded values of the visible attribute at path, restricted to those containing filter,
// after the attribute's unit transformations. The filter applies to the stored values.
func (s *Service) AttributeValues(ctx context.Context, path discovery.Path, filter string) ([]string, error) {
	a, err := s.Attribute(path)
	if err != nil {
		return nil, err
	}

	vals, err := s.engine.AttributeValues(ctx, path, filter)
	if err != nil {
		return nil, err
	}

	return transform(vals, a), nil
}

// Schema returns the backing schema of the visible network n.
func (s *Service) Schema(p, n string) (string, error) {
	dn, _, ok := s.network(p, n)
	if !ok {
		return "", notFound("schema", p+"."+n)
	}

	return dn.Schema, nil
}
