package schema

import "fmt"

// TableRef identifies a table either by name or by handle.
// It is implemented by TableName and *Table.
type TableRef interface {
	tableRef()
}

// TableName refers to a table by name.
type TableName string

func (TableName) tableRef() {}

// ColumnRef identifies a column either by name or by handle.
// It is implemented by ColumnName and *Field.
type ColumnRef interface {
	columnRef()
}

// ColumnName refers to a column by name. In sort specifications the name
// may be prefixed with '+' (ascending) or '-' (descending).
type ColumnName string

func (ColumnName) columnRef() {}

// Columns converts names into column references.
func Columns(names ...string) []ColumnRef {
	refs := make([]ColumnRef, len(names))
	for i, n := range names {
		refs[i] = ColumnName(n)
	}
	return refs
}

// Name returns the name of the table identified by ref.
func Name(ref TableRef) (string, error) {
	switch r := ref.(type) {
	case TableName:
		if r == "" {
			return "", fmt.Errorf("empty table name")
		}
		return string(r), nil
	case *Table:
		if r == nil {
			return "", fmt.Errorf("nil table")
		}
		return r.Name, nil
	default:
		return "", fmt.Errorf("unknown table specification %v", ref)
	}
}

// ColumnOf returns the column name identified by ref, including any sort prefix.
func ColumnOf(ref ColumnRef) (string, error) {
	switch r := ref.(type) {
	case ColumnName:
		if r == "" {
			return "", fmt.Errorf("empty column name")
		}
		return string(r), nil
	case *Field:
		if r == nil {
			return "", fmt.Errorf("nil field")
		}
		return r.Name, nil
	default:
		return "", fmt.Errorf("unknown column specification %v", ref)
	}
}
