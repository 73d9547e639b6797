package discovery

import (
	"strings"
)

// Cardinality classifies an attribute by its estimated number of distinct values.
type Cardinality string

// Cardinalities.
const (
	Low  Cardinality = "low"
	High Cardinality = "high"
)

// Attribute is a column of an entity. Its cached values live in the values cache, never in the graph.
type Attribute struct {
	Name             string      `json:"name"`
	DataType         string      `json:"dataType"`
	DistinctEstimate int64       `json:"distinctEstimate"`
	Cardinality      Cardinality `json:"cardinality"`
}

// Entity is a table or view of a network's schema.
type Entity struct {
	Name        string      `json:"name"`
	RowEstimate int64       `json:"rowEstimate"`
	Attributes  []Attribute `json:"attributes"`
}

// Network is a chain of a platform, backed by one schema.
type Network struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Platform    string   `json:"platform"`
	Schema      string   `json:"-"`
	Entities    []Entity `json:"entities"`
}

// Platform is a blockchain family.
type Platform struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Networks    []Network `json:"networks"`
}

// Path locates an attribute.
type Path struct {
	Platform  string
	Network   string
	Entity    string
	Attribute string
}

var segmentEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`)

// String returns the dotted form of p, used as its cache key. Dots and backslashes within names are escaped with a
// backslash so that distinct paths never share a key.
func (p Path) String() string {
	return strings.Join([]string{
		segmentEscaper.Replace(p.Platform), segmentEscaper.Replace(p.Network),
		segmentEscaper.Replace(p.Entity), segmentEscaper.Replace(p.Attribute),
	}, ".")
}

// ValueList is a bounded list of distinct attribute values. Truncated is set when the store held more distinct
// values than were kept.
type ValueList struct {
	Values    []string
	Truncated bool
}

// graph is the discovered metadata, never modified once built.
type graph struct {
	platforms []Platform
	index     map[Path]interface{} // Platform, Network, Entity or Attribute; trailing fields empty above attributes
}

func newGraph(platforms []Platform) *graph {
	g := &graph{platforms: platforms, index: make(map[Path]interface{})}

	for _, p := range platforms {
		g.index[Path{Platform: p.Name}] = p

		for _, n := range p.Networks {
			g.index[Path{Platform: p.Name, Network: n.Name}] = n

			for _, e := range n.Entities {
				g.index[Path{Platform: p.Name, Network: n.Name, Entity: e.Name}] = e

				for _, a := range e.Attributes {
					g.index[Path{p.Name, n.Name, e.Name, a.Name}] = a
				}
			}
		}
	}

	return g
}

func find[T any](g *graph, path Path) (T, bool) {
	var zero T

	if g == nil {
		return zero, false
	}

	v, ok := g.index[path].(T)
	if !ok {
		return zero, false
	}

	return v, true
}
