package schema

import (
	"fmt"
	"strings"
)

// Reference actions accepted for ON UPDATE / ON DELETE.
const (
	Restrict = "RESTRICT"
	Cascade  = "CASCADE"
	SetNull  = "SET NULL"
	NoAction = "NO ACTION"
)

// ReferenceActions lists the recognized reference actions.
var ReferenceActions = []string{Restrict, Cascade, SetNull, NoAction}

// Schema is a compiled set of tables.
type Schema struct {
	// Name is the database name.
	Name string
	// Types maps every type alias to its resolved basic type.
	Types map[string]string
	// Tables in declaration order.
	Tables []*Table

	tables map[string]int
}

// New returns an empty schema for the named database.
func New(name string) *Schema {
	return &Schema{
		Name:   name,
		Types:  make(map[string]string),
		tables: make(map[string]int),
	}
}

// AddTable appends a table to the schema and returns it.
// It returns an error if a table with the same name exists.
func (s *Schema) AddTable(name string) (*Table, error) {
	if _, ok := s.tables[name]; ok {
		return nil, fmt.Errorf("table %q already defined", name)
	}
	t := &Table{
		Name:   name,
		Index:  len(s.Tables),
		fields: make(map[string]int),
	}
	s.tables[name] = t.Index
	s.Tables = append(s.Tables, t)
	return t, nil
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	i, ok := s.tables[name]
	if !ok {
		return nil, false
	}
	return s.Tables[i], true
}

// Resolve returns the table identified by ref. A *Table must belong to s.
func (s *Schema) Resolve(ref TableRef) (*Table, error) {
	name, err := Name(ref)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve table: %w", err)
	}
	t, ok := s.Table(name)
	if r, isTable := ref.(*Table); isTable && (!ok || t != r) {
		return nil, fmt.Errorf("table %q does not belong to schema %q", name, s.Name)
	}
	if !ok {
		return nil, fmt.Errorf("cannot resolve table %q", name)
	}
	return t, nil
}

// Field returns the field addressed by a table and field index.
func (s *Schema) Field(table, field int) *Field {
	return s.Tables[table].Fields[field]
}

// Owner returns the table that owns f.
func (s *Schema) Owner(f *Field) *Table {
	return s.Tables[f.Table]
}

// Target returns the field referenced by f, or nil if f is not a reference.
func (s *Schema) Target(f *Field) *Field {
	if f.Ref == nil {
		return nil
	}
	return s.Field(f.Ref.Table, f.Ref.Field)
}

// TargetTable returns the table referenced by f, or nil if f is not a reference.
func (s *Schema) TargetTable(f *Field) *Table {
	if f.Ref == nil {
		return nil
	}
	return s.Tables[f.Ref.Table]
}

// Table is a compiled relation.
type Table struct {
	Name string
	// Index is the position of the table in Schema.Tables.
	Index int
	// Fields in declaration order.
	Fields []*Field
	// Primary lists the primary-key column names.
	Primary []string
	// Sort is the default sort specification used when a load does not
	// supply one.
	Sort []string
	// AutoIncrement names the auto-increment column, if any.
	AutoIncrement string

	fields map[string]int
}

func (*Table) tableRef() {}

// AddField appends a field to the table and returns it.
func (t *Table) AddField(name string) (*Field, error) {
	if _, ok := t.fields[name]; ok {
		return nil, fmt.Errorf("field %q already defined in table %q", name, t.Name)
	}
	f := &Field{
		Name:      name,
		Table:     t.Index,
		TableName: t.Name,
		Index:     len(t.Fields),
	}
	t.fields[name] = f.Index
	t.Fields = append(t.Fields, f)
	return f, nil
}

// Field returns the named field.
func (t *Table) Field(name string) (*Field, bool) {
	i, ok := t.fields[name]
	if !ok {
		return nil, false
	}
	return t.Fields[i], true
}

// HasField reports whether the table has a field with the given name.
func (t *Table) HasField(name string) bool {
	_, ok := t.fields[name]
	return ok
}

// IsPrimary reports whether name is one of the primary-key columns.
func (t *Table) IsPrimary(name string) bool {
	for _, p := range t.Primary {
		if p == name {
			return true
		}
	}
	return false
}

// SinglePrimary returns the primary-key column if the key has exactly one column.
func (t *Table) SinglePrimary() (string, bool) {
	if len(t.Primary) != 1 {
		return "", false
	}
	return t.Primary[0], true
}

// ForeignKeys returns the fields of t holding a reference.
func (t *Table) ForeignKeys() []*Field {
	var fks []*Field
	for _, f := range t.Fields {
		if f.Ref != nil {
			fks = append(fks, f)
		}
	}
	return fks
}

// Structured returns the fields of t carrying a Codec.
func (t *Table) Structured() []*Field {
	var fs []*Field
	for _, f := range t.Fields {
		if f.Codec != nil {
			fs = append(fs, f)
		}
	}
	return fs
}

// Field is a compiled column.
type Field struct {
	Name string
	// Table is the index of the owning table.
	Table int
	// TableName is the name of the owning table.
	TableName string
	// Index is the position of the field in Table.Fields.
	Index int
	// Type is the resolved column type, e.g. VARCHAR(64).
	Type string
	// DeclaredType is the type as written in the description, before alias
	// and reference resolution.
	DeclaredType string

	Nullable      bool
	AutoIncrement bool
	// Unique and IndexKey hold the key names, empty when not keyed.
	Unique   string
	IndexKey string

	Default    any
	HasDefault bool

	Ref   *Reference
	Codec Codec
}

func (*Field) columnRef() {}

// FullName returns the quoted, table-qualified field name used in diagnostics.
func (f *Field) FullName() string {
	return "`" + f.TableName + "`.`" + f.Name + "`"
}

// Serialize converts v into its stored representation. A nil v is replaced
// by the field default. Fields without a Codec return v unchanged.
func (f *Field) Serialize(v any) (any, error) {
	if f.Codec == nil {
		return v, nil
	}
	if v == nil {
		if !f.HasDefault {
			return nil, nil
		}
		v = f.Default
	}
	b, err := f.Codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", f.FullName(), err)
	}
	if f.Codec.Binary() {
		return b, nil
	}
	return string(b), nil
}

// Deserialize converts a stored value back into its in-memory form. NULL or
// empty stored values are replaced by the field default.
func (f *Field) Deserialize(v any) (any, error) {
	if f.Codec == nil {
		return v, nil
	}
	var b []byte
	switch v := v.(type) {
	case nil:
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return nil, fmt.Errorf("deserialize %s: unexpected stored type %T", f.FullName(), v)
	}
	if len(b) == 0 {
		return f.Default, nil
	}
	out, err := f.Codec.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("deserialize %s: %w", f.FullName(), err)
	}
	return out, nil
}

// Reference links a field to the field it refers to.
type Reference struct {
	// Table and Field address the target in the schema arena.
	Table int
	Field int
	// Spec is the textual target as declared, e.g. "countries" or "countries.id".
	Spec string
	// Implicit is set for references declared through a ":table" type.
	Implicit bool
	OnUpdate string
	OnDelete string
	// Constraint is the foreign-key constraint name.
	Constraint string
}

// ConstraintName derives the foreign-key constraint name for a field
// referencing targetTable.targetField.
func ConstraintName(field, targetTable, targetField string) string {
	return strings.Join([]string{field, "fk", targetTable, targetField}, "_")
}
