package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/lib/util"
)

func qualified(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

func countDistinctSQL(schema, table, column string) string {
	col := pq.QuoteIdentifier(column)

	return "SELECT COUNT(*) FROM (SELECT DISTINCT " + col + " FROM " + qualified(schema, table) +
		" WHERE " + col + " IS NOT NULL LIMIT $1) d"
}

func distinctValuesSQL(q store.ValuesQuery) (string, []interface{}) {
	col := pq.QuoteIdentifier(q.Column)
	args := []interface{}{q.Limit}

	var b strings.Builder

	b.WriteString("SELECT DISTINCT " + col + "::text FROM " + qualified(q.Schema, q.Table) + " WHERE " + col + " IS NOT NULL")

	if q.Filter != "" {
		args = append(args, "%"+util.EscapeLike(q.Filter)+"%")
		b.WriteString(" AND " + col + `::text ILIKE $2 ESCAPE '\'`)
	}

	b.WriteString(" ORDER BY 1 LIMIT $1")

	return b.String(), args
}

type sqlBuilder struct {
	b    strings.Builder
	args []interface{}
}

func (s *sqlBuilder) arg(v interface{}) string {
	s.args = append(s.args, v)

	return "$" + strconv.Itoa(len(s.args))
}

func badQuery(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", store.ErrBadQuery, fmt.Sprintf(format, args...))
}

func (s *sqlBuilder) predicate(p store.Predicate) (string, error) {
	col := pq.QuoteIdentifier(p.Field)

	var expr string

	switch p.Operation {
	case store.OpEq, store.OpLt, store.OpGt:
		if len(p.Set) != 1 {
			return "", badQuery("%s on %s needs exactly one value", p.Operation, p.Field)
		}

		op := map[string]string{store.OpEq: "=", store.OpLt: "<", store.OpGt: ">"}[p.Operation]
		expr = col + " " + op + " " + s.arg(p.Set[0])
	case store.OpIn:
		if len(p.Set) == 0 {
			return "", badQuery("in on %s needs at least one value", p.Field)
		}

		ph := make([]string, 0, len(p.Set))
		for _, v := range p.Set {
			ph = append(ph, s.arg(v))
		}

		expr = col + " IN (" + strings.Join(ph, ", ") + ")"
	case store.OpBetween:
		if len(p.Set) != 2 {
			return "", badQuery("between on %s needs two values", p.Field)
		}

		expr = col + " BETWEEN " + s.arg(p.Set[0]) + " AND " + s.arg(p.Set[1])
	case store.OpIsNull:
		expr = col + " IS NULL"
	case store.OpLike, store.OpStartsWith, store.OpEndsWith:
		if len(p.Set) != 1 {
			return "", badQuery("%s on %s needs exactly one value", p.Operation, p.Field)
		}

		pattern := util.EscapeLike(p.Set[0])

		switch p.Operation {
		case store.OpLike:
			pattern = "%" + pattern + "%"
		case store.OpStartsWith:
			pattern += "%"
		default:
			pattern = "%" + pattern
		}

		expr = col + "::text LIKE " + s.arg(pattern) + ` ESCAPE '\'`
	default:
		return "", badQuery("unknown operation %q", p.Operation)
	}

	if p.Inverse {
		expr = "NOT (" + expr + ")"
	}

	return expr, nil
}

func dataQuerySQL(q store.DataQuery) (string, []interface{}, error) {
	var s sqlBuilder

	s.b.WriteString("SELECT ")

	if len(q.Fields) == 0 {
		s.b.WriteString("*")
	} else {
		cols := make([]string, 0, len(q.Fields))
		for _, f := range q.Fields {
			cols = append(cols, pq.QuoteIdentifier(f))
		}

		s.b.WriteString(strings.Join(cols, ", "))
	}

	s.b.WriteString(" FROM " + qualified(q.Schema, q.Table))

	for i, p := range q.Predicates {
		expr, err := s.predicate(p)
		if err != nil {
			return "", nil, err
		}

		if i == 0 {
			s.b.WriteString(" WHERE ")
		} else {
			s.b.WriteString(" AND ")
		}

		s.b.WriteString(expr)
	}

	for i, o := range q.OrderBy {
		dir := "ASC"

		switch strings.ToLower(o.Direction) {
		case "", "asc":
		case "desc":
			dir = "DESC"
		default:
			return "", nil, badQuery("unknown direction %q", o.Direction)
		}

		if i == 0 {
			s.b.WriteString(" ORDER BY ")
		} else {
			s.b.WriteString(", ")
		}

		s.b.WriteString(pq.QuoteIdentifier(o.Field) + " " + dir)
	}

	if q.Limit <= 0 {
		return "", nil, badQuery("a positive limit is required")
	}

	s.b.WriteString(" LIMIT " + s.arg(q.Limit))

	return s.b.String(), s.args, nil
}

// Query runs an entity query. Byte values are returned as strings.
func (p *Postgres) Query(ctx context.Context, q store.DataQuery) ([]store.Row, error) {
	query, args, err := dataQuerySQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot query %s.%s: %w", q.Schema, q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := make([]store.Row, 0, q.Limit)

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))

		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(store.Row, len(cols))

		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}

		res = append(res, row)
	}

	return res, rows.Err()
}
