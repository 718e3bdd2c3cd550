// Package compiler turns a raw schema description into a compiled
// schema.Schema.
//
// Compilation runs in four passes over the whole description:
//
//  1. type aliases are resolved, rejecting cycles;
//  2. tables and fields are built: shorthand definitions are expanded, the
//     synthetic id column is injected, special types (::id, JSON, MSGPACK,
//     :table) are rewritten and key names are derived;
//  3. textual references are resolved to target fields and constraint names
//     are derived;
//  4. untyped referencing fields inherit the type of their target, until a
//     fixed point is reached.
//
// Every failure is returned as a *SchemaError.
package compiler

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/syssam/fkorm/compiler/load"
	"github.com/syssam/fkorm/diag"
	"github.com/syssam/fkorm/schema"
)

// Special types.
const (
	// TypeAutoID declares an auto-increment integer primary key.
	TypeAutoID = "::id"
	// RefPrefix marks an implicit reference: ":countries".
	RefPrefix = ":"
)

const (
	idField    = "id"
	idType     = "INTEGER"
	jsonText   = "LONGTEXT"
	msgpackBin = "LONGBLOB"
)

var (
	jsonType    = regexp.MustCompile(`(?i)^JSON(?:\(\s*(\d+)\s*\))?$`)
	msgpackType = regexp.MustCompile(`(?i)^MSGPACK$`)
)

// Compile compiles desc. The returned schema is immutable by convention and
// may be shared by any number of clients.
func Compile(desc *load.Schema, opts ...Option) (*schema.Schema, error) {
	cfg := &config{log: diag.New(nil, diag.LevelWarn)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if desc == nil {
		return nil, NewSchemaError("", "", "missing schema description", nil)
	}
	c := &compiler{
		desc: desc,
		log:  cfg.log,
		s:    schema.New(cfg.database),
	}
	for _, pass := range []func() error{c.aliases, c.tables, c.references, c.propagate} {
		if err := pass(); err != nil {
			return nil, c.log.Fail(err)
		}
	}
	return c.s, nil
}

type compiler struct {
	desc *load.Schema
	log  *diag.Logger
	s    *schema.Schema
	// refs holds fields declaring a reference, in declaration order.
	refs []*schema.Field
}

func (c *compiler) tables() error {
	for _, lt := range c.desc.Tables {
		if strings.HasPrefix(lt.Name, "$") || lt.Name == "" {
			return NewSchemaError(lt.Name, "", "invalid table name", nil)
		}
		t, err := c.s.AddTable(lt.Name)
		if err != nil {
			return NewSchemaError(lt.Name, "", "", err)
		}
		c.log.Info("schema", "table", t.Name)
		if err := c.table(t, lt); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) table(t *schema.Table, lt *load.Table) error {
	fields := lt.Fields
	_, hasID := lt.Field(idField)
	switch {
	case lt.HasPrimary:
		t.Primary = slices.Clone(lt.Primary)
		if t.Primary == nil {
			t.Primary = []string{}
		}
	case hasID:
		t.Primary = []string{idField}
	default:
		fields = append([]*load.Field{{Name: idField, Type: TypeAutoID}}, fields...)
	}
	for _, lf := range fields {
		if err := c.field(t, lf); err != nil {
			return err
		}
	}
	for i, p := range t.Primary {
		if !t.HasField(p) {
			return NewSchemaError(t.Name, p, "primary key column is not defined", nil)
		}
		if slices.Contains(t.Primary[:i], p) {
			return NewSchemaError(t.Name, p, "primary key column listed twice", nil)
		}
	}
	t.Sort = slices.Clone(lt.Sort)
	for _, s := range t.Sort {
		name := strings.TrimLeft(s, "+-")
		if !t.HasField(name) {
			return NewSchemaError(t.Name, name, "sort column is not defined", nil)
		}
	}
	return nil
}

func (c *compiler) field(t *schema.Table, lf *load.Field) error {
	if lf.Name == "" || strings.HasPrefix(lf.Name, "$") {
		return NewSchemaError(t.Name, lf.Name, "invalid field name", nil)
	}
	if lf.Shorthand != "" {
		expanded, err := ExpandShorthand(lf.Shorthand)
		if err != nil {
			return NewSchemaError(t.Name, lf.Name, "", err)
		}
		expanded.Name = lf.Name
		lf = expanded
	}
	f, err := t.AddField(lf.Name)
	if err != nil {
		return NewSchemaError(t.Name, lf.Name, "", err)
	}
	c.log.Info("schema", "field", f.FullName())
	f.DeclaredType = lf.Type
	f.Nullable = lf.Nullable
	f.AutoIncrement = lf.AutoIncrement
	f.Default, f.HasDefault = lf.Default, lf.HasDefault

	typ := lf.Type
	if resolved, ok := c.s.Types[typ]; ok {
		typ = resolved
	}
	switch {
	case typ == TypeAutoID:
		typ, f.AutoIncrement = idType, true
		if len(t.Primary) > 0 && !slices.Equal(t.Primary, []string{f.Name}) {
			return NewSchemaError(t.Name, f.Name, fmt.Sprintf("table already has primary key(s) %s", strings.Join(t.Primary, ", ")), nil)
		}
		t.Primary = []string{f.Name}
	case jsonType.MatchString(typ):
		m := jsonType.FindStringSubmatch(typ)
		typ = jsonText
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 {
				return NewSchemaError(t.Name, f.Name, fmt.Sprintf("invalid JSON length %q", m[1]), err)
			}
			typ = "VARCHAR(" + m[1] + ")"
		}
		f.Codec = schema.JSON
	case msgpackType.MatchString(typ):
		typ, f.Codec = msgpackBin, schema.MsgPack
	}
	if f.AutoIncrement {
		if t.AutoIncrement != "" {
			return NewSchemaError(t.Name, f.Name, fmt.Sprintf("table already has auto-increment column %s", t.AutoIncrement), nil)
		}
		t.AutoIncrement = f.Name
	}

	spec, implicit := lf.References, false
	if strings.HasPrefix(typ, RefPrefix) {
		if spec != "" {
			return NewSchemaError(t.Name, f.Name, fmt.Sprintf("cannot parse type %q: a reference already exists in this field's definition", typ), nil)
		}
		spec, implicit, typ = strings.TrimPrefix(typ, RefPrefix), true, ""
	}
	f.Type = typ

	if lf.Index {
		f.IndexKey = cmp.Or(lf.IndexName, f.Name+"_idx")
	}
	if lf.Unique {
		f.Unique = cmp.Or(lf.UniqueName, f.Name+"_uniq")
	}
	if spec == "" {
		if lf.OnUpdate != "" || lf.OnDelete != "" {
			c.log.Warn("reference action on a field without a reference is ignored", "field", f.FullName())
		}
		return nil
	}
	f.Ref = &schema.Reference{
		Spec:     spec,
		Implicit: implicit,
		OnUpdate: c.action(f, lf.OnUpdate),
		OnDelete: c.action(f, lf.OnDelete),
	}
	c.refs = append(c.refs, f)
	return nil
}

// action normalizes a reference action. Unknown actions are passed through
// with a warning.
func (c *compiler) action(f *schema.Field, v string) string {
	if v == "" {
		return schema.Restrict
	}
	v = strings.ToUpper(strings.TrimSpace(v))
	if !slices.Contains(schema.ReferenceActions, v) {
		c.log.Warn("unrecognized reference action", "field", f.FullName(), "action", v)
	}
	return v
}
