// Package postgres implements the store interfaces for PostgreSQL through database/sql, with either the lib/pq or the
// pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"                // registers the "postgres" driver

	"github.com/tarancss/chainquery/lib/store"
)

// Driver names accepted by New.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// DefaultKeyTable holds the API keys when none is configured.
const DefaultKeyTable = "api_keys"

// Postgres implements store.DB.
type Postgres struct {
	db       *sql.DB
	keyTable string
}

var _ store.DB = (*Postgres)(nil)

// New returns a postgres client connection to the specified database in 'connection' using driver. At most
// maxOpenConns connections are opened, unlimited when zero.
func New(driver, connection string, maxOpenConns int) (*Postgres, error) {
	db, err := sql.Open(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	return &Postgres{db: db, keyTable: DefaultKeyTable}, nil
}

// WithKeyTable sets the table API keys are loaded from.
func (p *Postgres) WithKeyTable(table string) *Postgres {
	if table != "" {
		p.keyTable = table
	}

	return p
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// APIKeys returns the active keys in the key table, expected to have a text column "key" and a boolean column
// "active".
func (p *Postgres) APIKeys(ctx context.Context) ([]string, error) {
	q := "SELECT key FROM " + pq.QuoteIdentifier(p.keyTable) + " WHERE active"

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("cannot load api keys: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, err
		}

		keys = append(keys, k)
	}

	return keys, rows.Err()
}
