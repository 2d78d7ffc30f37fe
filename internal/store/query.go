package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Op is a filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
	opWithin        Op = "within"
)

// Filter is a single predicate on a document field.
type Filter struct {
	Field  string
	Op     Op
	Value  any
	Window time.Duration
}

// Query selects documents from one collection. All filters must match.
type Query struct {
	Collection string
	Filters    []Filter
}

// Collection starts a query over every document in name.
func Collection(name string) Query {
	return Query{Collection: name}
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// WithinNext returns a copy of q restricted to documents whose time field
// falls in (now, now+d]. now is taken at every evaluation, so a live query
// picks up documents as they enter the window.
func (q Query) WithinNext(field string, d time.Duration) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: opWithin, Window: d})
	return q
}

func (q Query) String() string {
	parts := []string{q.Collection}
	for _, f := range q.Filters {
		if f.Op == opWithin {
			parts = append(parts, fmt.Sprintf("%s within %s", f.Field, f.Window))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value))
	}
	return strings.Join(parts, " | ")
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func validField(field string) bool {
	return fieldPattern.MatchString(field)
}

// compile turns q into a SQL statement over the documents table.
func (q Query) compile(now time.Time) (string, []any, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("%w: missing collection", ErrInvalidQuery)
	}

	conditions := []string{"collection = ?"}
	args := []any{q.Collection}

	for _, f := range q.Filters {
		if !validField(f.Field) {
			return "", nil, fmt.Errorf("%w: field %q", ErrInvalidQuery, f.Field)
		}
		path := "$." + f.Field

		switch f.Op {
		case OpEqual:
			conditions = append(conditions, "json_extract(data, ?) = ?")
			args = append(args, path, sqlValue(f.Value))
		case OpArrayContains:
			conditions = append(conditions,
				"EXISTS (SELECT 1 FROM json_each(documents.data, ?) WHERE json_each.value = ?)")
			args = append(args, path, sqlValue(f.Value))
		case opWithin:
			if f.Window <= 0 {
				return "", nil, fmt.Errorf("%w: window must be positive", ErrInvalidQuery)
			}
			conditions = append(conditions, millisExpr+" > ?", millisExpr+" <= ?")
			args = append(args,
				path, path, path, now.UnixMilli(),
				path, path, path, now.Add(f.Window).UnixMilli(),
			)
		default:
			return "", nil, fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
	}

	query := "SELECT id, data, version FROM documents WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY id"
	return query, args, nil
}

// millisExpr reads a stored time as Unix milliseconds. Times written
// through the store are already numeric; RFC 3339 strings written by other
// clients are converted. It binds the field path three times.
const millisExpr = `(CASE json_type(data, ?)
	WHEN 'text' THEN CAST(ROUND((julianday(json_extract(data, ?)) - 2440587.5) * 86400000) AS INTEGER)
	ELSE json_extract(data, ?) END)`

// sqlValue converts a filter value to what json_extract yields for the
// stored JSON: booleans are integers and times are Unix milliseconds.
func sqlValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case time.Time:
		return t.UnixMilli()
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
