// Package load decodes declarative schema descriptions and default data sets.
//
// Descriptions are YAML (or JSON, which YAML accepts) documents whose
// top-level keys are table names. Keys starting with '$' are directives:
//
//	$types:
//	  string: VARCHAR(64)
//	  country: ":countries"
//	users:
//	  $sort: +username
//	  username: {type: string, unique: true}
//	  country: country
//	  bio: "TEXT,nullable"
//
// Table and field order is preserved, since it drives column order in the
// generated DDL.
package load

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directive keys.
const (
	KeyTypes   = "$types"
	KeyPrimary = "$primary"
	KeySort    = "$sort"
)

// Schema is a raw, uncompiled description.
type Schema struct {
	// Types maps alias names to basic types or other aliases.
	Types map[string]string
	// Tables in declaration order.
	Tables []*Table
}

// Table describes a table.
type Table struct {
	Name string
	// Primary lists primary-key columns. HasPrimary distinguishes an
	// explicitly empty list, which disables the synthetic id column,
	// from an absent one.
	Primary    []string
	HasPrimary bool
	Sort       []string
	Fields     []*Field
}

// Field describes a field. A field is either declared with a shorthand
// string ("type[,unique][,index][,nullable][,cascade][,auto_increment]") or
// with the structured attributes below.
type Field struct {
	Name       string
	Shorthand  string
	Type       string
	Unique     bool
	UniqueName string
	Index      bool
	IndexName  string
	Nullable   bool
	// AutoIncrement marks the column AUTO_INCREMENT.
	AutoIncrement bool
	Default       any
	HasDefault    bool
	OnUpdate      string
	OnDelete      string
	// References is an explicit reference target: "table" or "table.field".
	References string
}

// Table returns the named table description.
func (s *Schema) Table(name string) (*Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Field returns the named field description.
func (t *Table) Field(name string) (*Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// ReadSchema reads and parses a description file.
func ReadSchema(path string) (*Schema, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseSchema(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSchema parses a YAML or JSON description.
func ParseSchema(buf []byte) (*Schema, error) {
	root, err := document(buf)
	if err != nil {
		return nil, err
	}
	s := &Schema{Types: make(map[string]string)}
	if root == nil {
		return s, nil
	}
	err = pairs(root, func(key string, value *yaml.Node) error {
		if key == KeyTypes {
			if err := value.Decode(&s.Types); err != nil {
				return fmt.Errorf("%s: %w", KeyTypes, err)
			}
			return nil
		}
		if strings.HasPrefix(key, "$") {
			return fmt.Errorf("unknown schema directive %q", key)
		}
		t, err := parseTable(key, value)
		if err != nil {
			return err
		}
		s.Tables = append(s.Tables, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func parseTable(name string, node *yaml.Node) (*Table, error) {
	t := &Table{Name: name}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("table %q: expected a mapping of fields", name)
	}
	err := pairs(node, func(key string, value *yaml.Node) error {
		switch {
		case key == KeyPrimary:
			list, err := stringList(value)
			if err != nil {
				return fmt.Errorf("table %q: %s: %w", name, KeyPrimary, err)
			}
			t.Primary, t.HasPrimary = list, true
		case key == KeySort:
			list, err := stringList(value)
			if err != nil {
				return fmt.Errorf("table %q: %s: %w", name, KeySort, err)
			}
			t.Sort = list
		case strings.HasPrefix(key, "$"):
			return fmt.Errorf("table %q: unknown directive %q", name, key)
		default:
			f, err := parseField(key, value)
			if err != nil {
				return fmt.Errorf("table %q: %w", name, err)
			}
			t.Fields = append(t.Fields, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// fieldNode is the structured form of a field definition.
type fieldNode struct {
	Type          string `yaml:"type"`
	Unique        any    `yaml:"unique"`
	Index         any    `yaml:"index"`
	Nullable      bool   `yaml:"nullable"`
	AutoIncrement bool   `yaml:"auto_increment"`
	OnUpdate      string `yaml:"onUpdate"`
	OnDelete      string `yaml:"onDelete"`
	References    string `yaml:"references"`
}

func parseField(name string, node *yaml.Node) (*Field, error) {
	f := &Field{Name: name}
	switch node.Kind {
	case yaml.ScalarNode:
		f.Shorthand = node.Value
		return f, nil
	case yaml.MappingNode:
	default:
		return nil, fmt.Errorf("field %q: expected a shorthand string or a mapping", name)
	}
	var fn fieldNode
	if err := node.Decode(&fn); err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}
	f.Type, f.Nullable, f.AutoIncrement = fn.Type, fn.Nullable, fn.AutoIncrement
	f.OnUpdate, f.OnDelete, f.References = fn.OnUpdate, fn.OnDelete, fn.References
	var err error
	if f.Unique, f.UniqueName, err = keyFlag(fn.Unique); err != nil {
		return nil, fmt.Errorf("field %q: unique: %w", name, err)
	}
	if f.Index, f.IndexName, err = keyFlag(fn.Index); err != nil {
		return nil, fmt.Errorf("field %q: index: %w", name, err)
	}
	// A null default is still a declared default.
	err = pairs(node, func(key string, value *yaml.Node) error {
		if key != "default" {
			return nil
		}
		f.HasDefault = true
		return value.Decode(&f.Default)
	})
	if err != nil {
		return nil, fmt.Errorf("field %q: default: %w", name, err)
	}
	return f, nil
}

// keyFlag accepts a boolean or an explicit key name.
func keyFlag(v any) (bool, string, error) {
	switch v := v.(type) {
	case nil:
		return false, "", nil
	case bool:
		return v, "", nil
	case string:
		if v == "" {
			return false, "", nil
		}
		return true, v, nil
	default:
		return false, "", fmt.Errorf("expected a boolean or a key name, got %T", v)
	}
}

// stringList accepts a single string or a sequence of strings.
func stringList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return []string{}, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		list := make([]string, 0, len(node.Content))
		if err := node.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("expected a name or a list of names")
	}
}

// document returns the top-level mapping of a YAML document, or nil for an
// empty document.
func document(buf []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping at the top level")
	}
	return root, nil
}

// pairs calls fn for every key/value pair of a mapping node, in order.
func pairs(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
