package config

import (
	"fmt"
	"strings"
)

// Overrides adjust how discovered metadata is presented, keyed by platform name. Keys are matched case-insensitively
// at every level.
type Overrides map[string]PlatformOverride

// PlatformOverride adjusts a platform and its networks.
type PlatformOverride struct {
	Visible      *bool                      `mapstructure:"visible"`
	DisplayName  string                     `mapstructure:"displayName"`
	Description  string                     `mapstructure:"description"`
	DisplayOrder *int                       `mapstructure:"displayOrder"`
	Networks     map[string]NetworkOverride `mapstructure:"networks"`
}

// NetworkOverride adjusts a network and its entities.
type NetworkOverride struct {
	Visible      *bool                     `mapstructure:"visible"`
	DisplayName  string                    `mapstructure:"displayName"`
	Description  string                    `mapstructure:"description"`
	DisplayOrder *int                      `mapstructure:"displayOrder"`
	Entities     map[string]EntityOverride `mapstructure:"entities"`
}

// EntityOverride adjusts an entity and its attributes.
type EntityOverride struct {
	Visible           *bool                        `mapstructure:"visible"`
	DisplayName       string                       `mapstructure:"displayName"`
	DisplayNamePlural string                       `mapstructure:"displayNamePlural"`
	Description       string                       `mapstructure:"description"`
	DisplayOrder      *int                         `mapstructure:"displayOrder"`
	Attributes        map[string]AttributeOverride `mapstructure:"attributes"`
}

// AttributeOverride adjusts an attribute. Scale, ValueLabels, CurrencySymbol and DataFormat are the unit
// transformations applied to the attribute values for display.
type AttributeOverride struct {
	Visible        *bool                 `mapstructure:"visible"`
	DisplayName    string                `mapstructure:"displayName"`
	Description    string                `mapstructure:"description"`
	DisplayOrder   *int                  `mapstructure:"displayOrder"`
	Scale          int                   `mapstructure:"scale"`
	CurrencySymbol string                `mapstructure:"currencySymbol"`
	DataFormat     string                `mapstructure:"dataFormat"`
	ValueLabels    map[string]string     `mapstructure:"valueLabels"`
	Cache          *AttributeCacheConfig `mapstructure:"cache"`
}

// AttributeCacheConfig overrides how the values of one attribute are cached and bounded. Nil fields keep the
// service wide defaults.
type AttributeCacheConfig struct {
	Cached         *bool `mapstructure:"cached"`
	MaxResults     int   `mapstructure:"maxResults"`
	MinMatchLength int   `mapstructure:"minMatchLength"`
}

// ValuesPolicy is the effective caching policy for an attribute.
type ValuesPolicy struct {
	Cached         bool
	MaxResults     int
	MinMatchLength int
}

func lookup[T any](m map[string]T, key string) (T, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}

	v, ok := m[strings.ToLower(key)]

	return v, ok
}

// Platform returns the override for platform p.
func (o Overrides) Platform(p string) PlatformOverride {
	v, _ := lookup(o, p)

	return v
}

// Network returns the override for network n of platform p.
func (o Overrides) Network(p, n string) NetworkOverride {
	v, _ := lookup(o.Platform(p).Networks, n)

	return v
}

// Entity returns the override for entity e.
func (o Overrides) Entity(p, n, e string) EntityOverride {
	v, _ := lookup(o.Network(p, n).Entities, e)

	return v
}

// Attribute returns the override for attribute a.
func (o Overrides) Attribute(p, n, e, a string) AttributeOverride {
	v, _ := lookup(o.Entity(p, n, e).Attributes, a)

	return v
}

// Values returns the caching policy for attribute a, starting from the service wide maxResults.
func (o Overrides) Values(p, n, e, a string, maxResults int) ValuesPolicy {
	pol := ValuesPolicy{Cached: true, MaxResults: maxResults}

	c := o.Attribute(p, n, e, a).Cache
	if c == nil {
		return pol
	}

	if c.Cached != nil {
		pol.Cached = *c.Cached
	}

	if c.MaxResults > 0 {
		pol.MaxResults = c.MaxResults
	}

	pol.MinMatchLength = c.MinMatchLength

	return pol
}

// IsVisible returns the value of an optional visibility flag, visible unless set to false.
func IsVisible(v *bool) bool {
	return v == nil || *v
}

func (o Overrides) validate() error {
	for p, po := range o {
		for n, no := range po.Networks {
			for e, eo := range no.Entities {
				for a, ao := range eo.Attributes {
					if ao.Scale < 0 || ao.Scale > 36 {
						return fmt.Errorf("metadata.%s.networks.%s.entities.%s.attributes.%s: scale out of range", p, n, e, a)
					}

					if ao.Cache != nil && (ao.Cache.MaxResults < 0 || ao.Cache.MinMatchLength < 0) {
						return fmt.Errorf("metadata.%s.networks.%s.entities.%s.attributes.%s: negative cache bound", p, n, e, a)
					}
				}
			}
		}
	}

	return nil
}
