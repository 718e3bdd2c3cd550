package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/syssam/fkorm/schema"
)

// aliases resolves every type alias to a non-alias type.
func (c *compiler) aliases() error {
	for _, alias := range slices.Sorted(maps.Keys(c.desc.Types)) {
		typ := c.desc.Types[alias]
		seen := map[string]bool{alias: true}
		for {
			next, ok := c.desc.Types[typ]
			if !ok {
				break
			}
			if seen[typ] {
				return NewSchemaError("", "", fmt.Sprintf("circular type alias dependency for %q", alias), nil)
			}
			seen[typ] = true
			typ = next
		}
		c.s.Types[alias] = typ
	}
	return nil
}

// references resolves reference specifications to target fields.
func (c *compiler) references() error {
	for _, f := range c.refs {
		target, err := c.resolveField(f.Ref.Spec)
		if err != nil {
			return NewSchemaError(f.TableName, f.Name, fmt.Sprintf("failed to resolve reference %q", f.Ref.Spec), err)
		}
		f.Ref.Table, f.Ref.Field = target.Table, target.Index
		f.Ref.Constraint = schema.ConstraintName(f.Name, target.TableName, target.Name)
	}
	return nil
}

// resolveField resolves "table" or "table.field". A bare table name refers
// to the single-column primary key of that table.
func (c *compiler) resolveField(spec string) (*schema.Field, error) {
	path := strings.Split(spec, ".")
	if len(path) > 2 {
		return nil, fmt.Errorf("format: <table name>.<field name>")
	}
	t, ok := c.s.Table(path[0])
	if !ok {
		return nil, fmt.Errorf("table %q not found", path[0])
	}
	var name string
	if len(path) == 2 {
		name = path[1]
	} else {
		switch len(t.Primary) {
		case 0:
			return nil, fmt.Errorf("no field was specified and the target table %q has no primary key to use as default", t.Name)
		case 1:
			name = t.Primary[0]
		default:
			return nil, fmt.Errorf("target table %q has a composite primary key and no target field was specified", t.Name)
		}
	}
	f, ok := t.Field(name)
	if !ok {
		return nil, fmt.Errorf("field %q was not found in table %q", name, t.Name)
	}
	return f, nil
}

// propagate gives untyped referencing fields the type of their target.
// A pass that makes no progress means the remaining fields only refer to
// each other.
func (c *compiler) propagate() error {
	var pending []*schema.Field
	for _, f := range c.refs {
		if f.Type == "" {
			pending = append(pending, f)
		}
	}
	for len(pending) > 0 {
		rest := pending[:0]
		for _, f := range pending {
			if target := c.s.Target(f); target.Type != "" {
				f.Type = target.Type
				continue
			}
			rest = append(rest, f)
		}
		if len(rest) == len(pending) {
			names := make([]string, len(rest))
			for i, f := range rest {
				names[i] = f.FullName()
			}
			return NewSchemaError("", "", "failed to resolve references: circular dependency between implicitly typed reference fields: "+strings.Join(names, ", "), nil)
		}
		pending = rest
	}
	for _, t := range c.s.Tables {
		for _, f := range t.Fields {
			if f.Type == "" {
				return NewSchemaError(t.Name, f.Name, "field has no type", nil)
			}
		}
	}
	return nil
}
