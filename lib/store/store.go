// Package store defines the interfaces the query service needs from its backing store: schema introspection, bounded
// distinct value listings, entity queries and API key lookups.
package store

import (
	"context"
	"errors"
)

// Introspector enumerates the tables and columns of a schema and lists the distinct values of a column. Every method
// returning values is bounded by a limit.
type Introspector interface {
	Tables(ctx context.Context, schema string) ([]Table, error)
	Columns(ctx context.Context, schema, table string) ([]Column, error)
	// CountDistinct counts the distinct values of a column, stopping at limit.
	CountDistinct(ctx context.Context, schema, table, column string, limit int) (int64, error)
	DistinctValues(ctx context.Context, q ValuesQuery) ([]string, error)
}

// Querier runs entity queries.
type Querier interface {
	Query(ctx context.Context, q DataQuery) ([]Row, error)
}

// KeySource loads the API keys kept by an external system.
type KeySource interface {
	APIKeys(ctx context.Context) ([]string, error)
}

// DB is implemented by the relational backing store.
type DB interface {
	Introspector
	Querier
	KeySource
	Ping(ctx context.Context) error
	Close() error
}

// Errors returned
var (
	ErrDataNotFound = errors.New("data was not found in store")
	ErrBadQuery     = errors.New("query cannot be executed")
)
