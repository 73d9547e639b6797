package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tarancss/chainquery/lib/store"
)

const tablesSQL = `SELECT c.relname, GREATEST(c.reltuples, 0)::bigint
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'v', 'm', 'p')
ORDER BY c.relname`

// columnsSQL keeps one statistics row per column: tables with inheritance children have one row for the table alone
// and one including its children, and the latter describes what a query on the table reads.
const columnsSQL = `SELECT DISTINCT ON (c.ordinal_position)
  c.column_name, c.data_type, COALESCE(s.n_distinct, 0), s.n_distinct IS NOT NULL
FROM information_schema.columns c
LEFT JOIN pg_catalog.pg_stats s
  ON s.schemaname = c.table_schema AND s.tablename = c.table_name AND s.attname = c.column_name
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position, s.inherited DESC NULLS LAST`

// Tables lists the tables, views and materialized views of schema with their planner row estimates.
func (p *Postgres) Tables(ctx context.Context, schema string) ([]store.Table, error) {
	rows, err := p.db.QueryContext(ctx, tablesSQL, schema)
	if err != nil {
		return nil, fmt.Errorf("cannot list tables of %s: %w", schema, err)
	}
	defer rows.Close()

	var ts []store.Table

	for rows.Next() {
		var t store.Table
		if err = rows.Scan(&t.Name, &t.RowEstimate); err != nil {
			return nil, err
		}

		ts = append(ts, t)
	}

	return ts, rows.Err()
}

// Columns lists the columns of a table with their distinct value statistics.
func (p *Postgres) Columns(ctx context.Context, schema, table string) ([]store.Column, error) {
	rows, err := p.db.QueryContext(ctx, columnsSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("cannot list columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cs []store.Column

	for rows.Next() {
		var c store.Column
		if err = rows.Scan(&c.Name, &c.DataType, &c.NDistinct, &c.HasStats); err != nil {
			return nil, err
		}

		cs = append(cs, c)
	}

	return cs, rows.Err()
}

// CountDistinct counts the distinct values of column without reading past limit of them.
func (p *Postgres) CountDistinct(ctx context.Context, schema, table, column string, limit int) (int64, error) {
	var n int64

	err := p.db.QueryRowContext(ctx, countDistinctSQL(schema, table, column), limit).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cannot count distinct values of %s.%s.%s: %w", schema, table, column, err)
	}

	return n, nil
}

// DistinctValues returns at most q.Limit distinct non-null values of a column as text.
func (p *Postgres) DistinctValues(ctx context.Context, q store.ValuesQuery) ([]string, error) {
	query, args := distinctValuesSQL(q)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot list values of %s.%s.%s: %w", q.Schema, q.Table, q.Column, err)
	}
	defer rows.Close()

	values := make([]string, 0, q.Limit)

	for rows.Next() {
		var v sql.NullString
		if err = rows.Scan(&v); err != nil {
			return nil, err
		}

		if v.Valid {
			values = append(values, v.String)
		}
	}

	return values, rows.Err()
}
