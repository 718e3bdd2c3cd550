package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/fkorm/schema"
)

// Clause keywords.
const (
	selectAll = "SELECT *"
	deleteKw  = "DELETE"
)

// Quote returns ident as a backtick-quoted identifier.
func Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// Statement joins clauses into a single statement, skipping empty ones.
func Statement(clauses ...string) string {
	var b strings.Builder
	for _, c := range clauses {
		if c == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c)
	}
	return b.String()
}

// Select returns a SELECT clause for the given columns, or SELECT * when
// none are given.
func Select(columns ...schema.ColumnRef) (string, error) {
	if len(columns) == 0 {
		return selectAll, nil
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		name, err := schema.ColumnOf(c)
		if err != nil {
			return "", err
		}
		if name[0] == '+' || name[0] == '-' {
			return "", fmt.Errorf("select: sort prefix on column %q", name)
		}
		quoted[i] = Quote(name)
	}
	return "SELECT " + strings.Join(quoted, ", "), nil
}

// Delete returns the DELETE keyword.
func Delete() string { return deleteKw }

// From returns a FROM clause for the referenced table.
func From(s *schema.Schema, ref schema.TableRef) (string, error) {
	return tableClause(s, ref, "FROM")
}

// InsertInto returns an INSERT INTO clause for the referenced table.
func InsertInto(s *schema.Schema, ref schema.TableRef) (string, error) {
	return tableClause(s, ref, "INSERT INTO")
}

// Update returns an UPDATE clause for the referenced table.
func Update(s *schema.Schema, ref schema.TableRef) (string, error) {
	return tableClause(s, ref, "UPDATE")
}

func tableClause(s *schema.Schema, ref schema.TableRef, kw string) (string, error) {
	t, err := s.Resolve(ref)
	if err != nil {
		return "", err
	}
	return kw + " " + Quote(t.Name), nil
}

// Where returns a WHERE clause and its arguments for criteria on table t.
// When criteria include the single-column primary key, only that key is
// used. Other columns are compared for equality in field order and joined
// with AND; a nil value matches NULL. Reference columns must already hold
// raw identifiers. Empty criteria yield an empty clause.
func Where(t *schema.Table, criteria map[string]any) (string, []any, error) {
	if len(criteria) == 0 {
		return "", nil, nil
	}
	for k := range criteria {
		if !t.HasField(k) {
			return "", nil, fmt.Errorf("where: table %q has no field %q", t.Name, k)
		}
	}
	if pk, ok := t.SinglePrimary(); ok {
		if v, ok := criteria[pk]; ok {
			criteria = map[string]any{pk: v}
		}
	}
	var (
		preds []string
		args  []any
	)
	for _, f := range t.Fields {
		v, ok := criteria[f.Name]
		if !ok {
			continue
		}
		v, err := whereValue(f, v)
		if err != nil {
			return "", nil, err
		}
		if v == nil {
			preds = append(preds, Quote(f.Name)+" IS NULL")
			continue
		}
		preds = append(preds, Quote(f.Name)+" = ?")
		args = append(args, v)
	}
	return "WHERE " + strings.Join(preds, " AND "), args, nil
}

func whereValue(f *schema.Field, v any) (any, error) {
	if f.Codec != nil && v != nil {
		return f.Serialize(v)
	}
	if _, ok := v.(map[string]any); ok {
		if f.Ref != nil {
			return nil, fmt.Errorf("where: reference criteria on %s must be resolved first", f.FullName())
		}
		return nil, fmt.Errorf("where: unsupported object value for %s", f.FullName())
	}
	return v, nil
}

// OrderBy returns an ORDER BY clause for table t. Each column may be
// prefixed with '+' (ASC) or '-' (DESC). When sort is empty the table's
// default sort is used, and when that is empty too the clause is empty.
func OrderBy(t *schema.Table, sort ...schema.ColumnRef) (string, error) {
	if len(sort) == 0 {
		sort = schema.Columns(t.Sort...)
	}
	if len(sort) == 0 {
		return "", nil
	}
	terms := make([]string, len(sort))
	for i, s := range sort {
		name, err := schema.ColumnOf(s)
		if err != nil {
			return "", err
		}
		dir := ""
		switch name[0] {
		case '+':
			name, dir = name[1:], " ASC"
		case '-':
			name, dir = name[1:], " DESC"
		}
		if f, ok := s.(*schema.Field); ok && f.Table != t.Index {
			return "", fmt.Errorf("order by: field %s does not belong to table %q", f.FullName(), t.Name)
		}
		if !t.HasField(name) {
			return "", fmt.Errorf("order by: table %q has no field %q", t.Name, name)
		}
		terms[i] = Quote(name) + dir
	}
	return "ORDER BY " + strings.Join(terms, ", "), nil
}

// Range selects a window of rows. Exactly two of First, Last and Count
// must be set; Last is exclusive.
type Range struct {
	First *int
	Last  *int
	Count *int
}

// Window returns the range of count rows starting at first.
func Window(first, count int) Range {
	return Range{First: &first, Count: &count}
}

// IsZero reports whether no bound is set.
func (r Range) IsZero() bool {
	return r.First == nil && r.Last == nil && r.Count == nil
}

// Limit returns a LIMIT clause for r, deriving the missing bound.
func Limit(r Range) (string, error) {
	var first, count int
	switch set := btoi(r.First != nil) + btoi(r.Last != nil) + btoi(r.Count != nil); {
	case set == 3:
		return "", errors.New("limit: first, last and count are all set")
	case set < 2:
		return "", errors.New("limit: two of first, last and count are required")
	case r.Count == nil:
		first, count = *r.First, *r.Last-*r.First
	case r.Last == nil:
		first, count = *r.First, *r.Count
	default:
		first, count = *r.Last-*r.Count, *r.Count
	}
	if first < 0 || count < 0 {
		return "", fmt.Errorf("limit: invalid range (first %d, count %d)", first, count)
	}
	return "LIMIT " + strconv.Itoa(count) + " OFFSET " + strconv.Itoa(first), nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Set returns a SET assignment list for the given columns of row.
func Set(t *schema.Table, keys []string, row map[string]any) (string, []any, error) {
	if len(keys) == 0 {
		return "", nil, errors.New("set: no columns")
	}
	assign := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		if !t.HasField(k) {
			return "", nil, fmt.Errorf("set: table %q has no field %q", t.Name, k)
		}
		v := row[k]
		if _, ok := v.(map[string]any); ok {
			return "", nil, fmt.Errorf("set: unresolved object value for field %q", k)
		}
		assign[i] = Quote(k) + " = ?"
		args[i] = v
	}
	return "SET " + strings.Join(assign, ", "), args, nil
}

// OnDuplicateKeyUpdate returns an ON DUPLICATE KEY UPDATE clause
// reassigning the non-key columns among keys. When all of keys are primary
// key columns, the key columns are reassigned instead so that the statement
// stays a valid no-op update.
func OnDuplicateKeyUpdate(t *schema.Table, keys []string) (string, error) {
	var cols []string
	for _, k := range keys {
		if !t.HasField(k) {
			return "", fmt.Errorf("on duplicate key update: table %q has no field %q", t.Name, k)
		}
		if !t.IsPrimary(k) {
			cols = append(cols, k)
		}
	}
	if len(cols) == 0 {
		cols = keys
	}
	if len(cols) == 0 {
		return "", errors.New("on duplicate key update: no columns")
	}
	assign := make([]string, len(cols))
	for i, c := range cols {
		assign[i] = Quote(c) + " = VALUES(" + Quote(c) + ")"
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(assign, ", "), nil
}

// RowColumns returns the columns of t present in row, in field order.
// Keys that are not fields of t are an error.
func RowColumns(t *schema.Table, row map[string]any) ([]string, error) {
	for k := range row {
		if !t.HasField(k) {
			return nil, fmt.Errorf("table %q has no field %q", t.Name, k)
		}
	}
	keys := make([]string, 0, len(row))
	for _, f := range t.Fields {
		if _, ok := row[f.Name]; ok {
			keys = append(keys, f.Name)
		}
	}
	return keys, nil
}
