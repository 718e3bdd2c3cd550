// Package schema generates DDL from a compiled schema and provisions a
// MySQL database with it. Tables are converted into atlas schema objects
// and planned with the atlas MySQL planner, which needs no connection.
package schema

import (
	"context"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	atlas "ariga.io/atlas/sql/schema"

	"github.com/syssam/fkorm/dialect/sql"
	fkschema "github.com/syssam/fkorm/schema"
)

// Session statements wrapped around table creation, so that tables can be
// created in declaration order regardless of their references.
const (
	DisableForeignKeyChecks = "SET FOREIGN_KEY_CHECKS = 0"
	EnableForeignKeyChecks  = "SET FOREIGN_KEY_CHECKS = 1"
)

// typeSynonyms maps type names MySQL accepts but reports under another name.
var typeSynonyms = map[string]string{
	"integer": mysql.TypeInt,
	"dec":     mysql.TypeDecimal,
	"fixed":   mysql.TypeDecimal,
}

// unsorted keeps changes in the given order. Foreign key checks are off
// while tables are created.
func unsorted(o *migrate.PlanOptions) { o.Mode = migrate.PlanModeUnsortedDump }

// plan renders changes into statements.
func plan(name string, changes []atlas.Change) ([]string, error) {
	p, err := mysql.DefaultPlan.PlanChanges(context.Background(), name, changes, unsorted)
	if err != nil {
		return nil, err
	}
	stmts := make([]string, len(p.Changes))
	for i, c := range p.Changes {
		stmts[i] = c.Cmd
	}
	return stmts, nil
}

// CreateDatabase returns the statements creating the database name.
// With recreate, the database is dropped first.
func CreateDatabase(name string, recreate bool) ([]string, error) {
	db := atlas.New(name)
	var changes []atlas.Change
	if recreate {
		changes = append(changes, &atlas.DropSchema{S: db, Extra: []atlas.Clause{&atlas.IfExists{}}})
	}
	changes = append(changes, &atlas.AddSchema{S: db, Extra: []atlas.Clause{&atlas.IfNotExists{}}})
	return plan(name, changes)
}

// UseDatabase returns the statement selecting the database name.
func UseDatabase(name string) string {
	return "USE " + sql.Quote(name)
}

// CreateTables returns the statements creating every table of s. With
// recreate, existing tables are dropped first.
func CreateTables(s *fkschema.Schema, recreate bool) ([]string, error) {
	tables, err := Tables(s)
	if err != nil {
		return nil, err
	}
	var changes []atlas.Change
	if recreate {
		for _, t := range tables {
			changes = append(changes, &atlas.DropTable{T: t, Extra: []atlas.Clause{&atlas.IfExists{}}})
		}
	}
	for _, t := range tables {
		changes = append(changes, &atlas.AddTable{T: t, Extra: []atlas.Clause{&atlas.IfNotExists{}}})
	}
	stmts := []string{DisableForeignKeyChecks}
	if len(changes) > 0 {
		planned, err := plan(s.Name, changes)
		if err != nil {
			return nil, fmt.Errorf("planning tables of %q: %w", s.Name, err)
		}
		stmts = append(stmts, planned...)
	}
	return append(stmts, EnableForeignKeyChecks), nil
}

// CreateTable returns the CREATE TABLE statement for t.
func CreateTable(s *fkschema.Schema, t *fkschema.Table) (string, error) {
	tables, err := Tables(s)
	if err != nil {
		return "", err
	}
	stmts, err := plan(s.Name, []atlas.Change{
		&atlas.AddTable{T: tables[t.Index], Extra: []atlas.Clause{&atlas.IfNotExists{}}},
	})
	if err != nil {
		return "", err
	}
	return stmts[0], nil
}

// Tables converts the tables of s into atlas tables. Keys are attached
// after every column exists, so foreign keys point at the columns of the
// referenced atlas table.
func Tables(s *fkschema.Schema) ([]*atlas.Table, error) {
	tables := make([]*atlas.Table, len(s.Tables))
	for i, t := range s.Tables {
		at := atlas.NewTable(t.Name)
		for _, f := range t.Fields {
			c, err := Column(f)
			if err != nil {
				return nil, err
			}
			at.AddColumns(c)
		}
		tables[i] = at
	}
	for i, t := range s.Tables {
		at := tables[i]
		if len(t.Primary) > 0 {
			pk := make([]*atlas.Column, 0, len(t.Primary))
			for _, name := range t.Primary {
				f, ok := t.Field(name)
				if !ok {
					return nil, fmt.Errorf("primary key column %q is not defined in table %q", name, t.Name)
				}
				pk = append(pk, at.Columns[f.Index])
			}
			at.SetPrimaryKey(atlas.NewPrimaryKey(pk...))
		}
		for _, f := range t.Fields {
			c := at.Columns[f.Index]
			if f.IndexKey != "" {
				at.AddIndexes(atlas.NewIndex(f.IndexKey).AddColumns(c))
			}
			if f.Unique != "" {
				at.AddIndexes(atlas.NewUniqueIndex(f.Unique).AddColumns(c))
			}
			if f.Ref == nil {
				continue
			}
			ref := tables[f.Ref.Table]
			at.AddForeignKeys(atlas.NewForeignKey(f.Ref.Constraint).
				AddColumns(c).
				SetRefTable(ref).
				AddRefColumns(ref.Columns[f.Ref.Field]).
				SetOnUpdate(atlas.ReferenceOption(f.Ref.OnUpdate)).
				SetOnDelete(atlas.ReferenceOption(f.Ref.OnDelete)))
		}
	}
	return tables, nil
}

// Column converts f into an atlas column. Defaults of structured fields
// are serialized first. Text, blob and JSON columns take their default as
// an expression, the only form MySQL accepts for them.
func Column(f *fkschema.Field) (*atlas.Column, error) {
	t, err := ColumnType(f.Type)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", f.FullName(), err)
	}
	c := atlas.NewColumn(f.Name).SetType(t).SetNull(f.Nullable)
	c.Type.Raw = f.Type
	if f.AutoIncrement {
		c.AddAttrs(&mysql.AutoIncrement{})
	}
	if !f.HasDefault || f.Default == nil {
		return c, nil
	}
	v, err := f.Serialize(f.Default)
	if err != nil {
		return nil, fmt.Errorf("default of %s: %w", f.FullName(), err)
	}
	lit := literal(v)
	if literalDefault(t) {
		c.SetDefault(&atlas.Literal{V: lit})
	} else {
		c.SetDefault(&atlas.RawExpr{X: "(" + lit + ")"})
	}
	return c, nil
}

// ColumnType parses a MySQL column type such as VARCHAR(64) or
// INT UNSIGNED. Enum and set values keep their case.
func ColumnType(raw string) (atlas.Type, error) {
	raw = strings.TrimSpace(raw)
	head, rest := raw, ""
	if i := strings.IndexAny(raw, "( "); i >= 0 {
		head, rest = raw[:i], raw[i:]
	}
	head = strings.ToLower(head)
	if name, ok := typeSynonyms[head]; ok {
		head = name
	}
	if !strings.ContainsAny(rest, `'"`) {
		rest = strings.ToLower(rest)
	}
	t, err := mysql.ParseType(head + rest)
	if err != nil {
		return nil, err
	}
	if _, ok := t.(*atlas.UnsupportedType); ok {
		return nil, fmt.Errorf("unsupported column type %q", raw)
	}
	return t, nil
}

// literalDefault reports whether columns of type t accept a literal default.
func literalDefault(t atlas.Type) bool {
	switch t := t.(type) {
	case *atlas.StringType:
		return t.T == mysql.TypeChar || t.T == mysql.TypeVarchar
	case *atlas.BinaryType:
		return t.T == mysql.TypeBinary || t.T == mysql.TypeVarBinary
	case *atlas.JSONType, *atlas.SpatialType:
		return false
	default:
		return true
	}
}

// literal renders a default value. Binary values are written as hex.
func literal(v any) string {
	if b, ok := v.([]byte); ok && len(b) > 0 {
		return fmt.Sprintf("0x%x", b)
	}
	return sql.QuoteValue(v)
}
