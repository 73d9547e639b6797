// Package db implements the opening and graceful closing of database connections.
package db

import (
	"fmt"

	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/lib/store/mongo"
	"github.com/tarancss/chainquery/lib/store/postgres"
)

// New returns a new backing store connection according to the options (database type).
func New(options, connection string, maxOpenConns int) (store.DB, error) {
	switch options {
	case config.Postgres:
		return postgres.New(postgres.DriverPQ, connection, maxOpenConns)
	case config.PGX:
		return postgres.New(postgres.DriverPGX, connection, maxOpenConns)
	}

	return nil, fmt.Errorf("unknown database type %q", options)
}

// NewKeySource returns the external API key source described by ks, reusing dh for postgresql sources without a
// connection of their own. It returns nil when no source is configured.
func NewKeySource(ks config.KeySourceConfig, dh store.DB, maxOpenConns int) (store.KeySource, error) {
	switch ks.Type {
	case "":
		return nil, nil
	case config.Postgres:
		if ks.Conn == "" {
			if pg, ok := dh.(*postgres.Postgres); ok {
				return pg.WithKeyTable(ks.Table), nil
			}

			return dh, nil
		}

		pg, err := postgres.New(postgres.DriverPQ, ks.Conn, maxOpenConns)
		if err != nil {
			return nil, err
		}

		return pg.WithKeyTable(ks.Table), nil
	case config.MongoDB:
		m, err := mongo.New(ks.Conn, ks.Database, ks.Collection)
		if err != nil {
			return nil, err
		}

		return m, nil
	}

	return nil, fmt.Errorf("unknown key source type %q", ks.Type)
}

// Close gracefully closes a database connection or key source.
func Close(dh interface{}) error {
	switch c := dh.(type) {
	case *mongo.Mongo:
		return c.CloseMongo()
	case store.DB:
		return c.Close()
	}

	return nil
}
