package load

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TableRows is the default data of one table.
type TableRows struct {
	Table string
	// Rows map field names to values. A reference field may hold either a
	// raw identifier or a criteria mapping resolved when the data is saved.
	Rows []map[string]any
}

// Dataset is default data in file order. Order matters: rows may refer
// through criteria to rows of tables listed before them.
type Dataset []TableRows

// ReadData reads and parses a default-data file.
func ReadData(path string) (Dataset, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseData(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseData parses a YAML or JSON data set of the form
//
//	table: [ {field: value, ...}, ... ]
func ParseData(buf []byte) (Dataset, error) {
	root, err := document(buf)
	if err != nil || root == nil {
		return nil, err
	}
	var d Dataset
	err = pairs(root, func(table string, value *yaml.Node) error {
		if value.Kind != yaml.SequenceNode {
			return fmt.Errorf("table %q: expected a list of rows", table)
		}
		tr := TableRows{Table: table}
		for i, n := range value.Content {
			var row map[string]any
			if err := n.Decode(&row); err != nil {
				return fmt.Errorf("table %q: row %d: %w", table, i, err)
			}
			tr.Rows = append(tr.Rows, row)
		}
		d = append(d, tr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
