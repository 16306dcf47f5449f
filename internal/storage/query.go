package storage

import (
	"fmt"
	"strings"
)

// filterQuery accumulates "AND col op $n" clauses with positional args
type filterQuery struct {
	clauses []string
	args    []interface{}
}

func (q *filterQuery) add(column, op string, arg interface{}) {
	q.args = append(q.args, arg)
	q.clauses = append(q.clauses, fmt.Sprintf(" AND %s %s $%d", column, op, len(q.args)))
}

// where returns the WHERE clause, always non-empty
func (q *filterQuery) where() string {
	return " WHERE 1=1" + strings.Join(q.clauses, "")
}

// page appends ORDER BY / LIMIT / OFFSET and returns the full args
func (q *filterQuery) page(orderBy string, limit, offset int) (string, []interface{}) {
	args := append(append([]interface{}{}, q.args...), limit, offset)
	return fmt.Sprintf(" ORDER BY %s DESC LIMIT $%d OFFSET $%d", orderBy, len(args)-1, len(args)), args
}

func messageFilterQuery(f MessageFilters) *filterQuery {
	q := &filterQuery{}
	if f.Source != nil {
		q.add("src", "=", strings.ToUpper(*f.Source))
	}
	if f.Destination != nil {
		q.add("dst", "=", strings.ToUpper(*f.Destination))
	}
	if f.StartTime != nil {
		q.add("received_at", ">=", *f.StartTime)
	}
	if f.EndTime != nil {
		q.add("received_at", "<=", *f.EndTime)
	}
	return q
}

func eventFilterQuery(f EventLogFilters) *filterQuery {
	q := &filterQuery{}
	if f.Type != nil {
		q.add("type", "=", *f.Type)
	}
	if f.Level != nil {
		q.add("level", "=", *f.Level)
	}
	if f.StartTime != nil {
		q.add("created_at", ">=", *f.StartTime)
	}
	if f.EndTime != nil {
		q.add("created_at", "<=", *f.EndTime)
	}
	return q
}
