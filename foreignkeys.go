package fkorm

import (
	"context"
	"maps"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/fkorm/dialect/sql"
	"github.com/syssam/fkorm/schema"
)

// ForeignKeys returns the reference columns of table.
func (c *Client) ForeignKeys(table schema.TableRef) ([]*schema.Field, error) {
	t, err := c.table("foreign keys", table)
	if err != nil {
		return nil, err
	}
	return t.ForeignKeys(), nil
}

// reference checks that f is a reference column of the client's schema.
func (c *Client) reference(op string, f *schema.Field) error {
	if f == nil {
		return usageErrorf(op, "nil field")
	}
	if f.Table >= len(c.schema.Tables) || f.Index >= len(c.schema.Tables[f.Table].Fields) || c.schema.Field(f.Table, f.Index) != f {
		return usageErrorf(op, "field %s does not belong to schema %q", f.FullName(), c.schema.Name)
	}
	if f.Ref == nil {
		return usageErrorf(op, "field %s is not a reference", f.FullName())
	}
	return nil
}

// LookupID returns the identifier of the row referenced by f that matches
// criteria. Criteria may nest criteria for the referenced table's own
// references. A LookupError is returned unless exactly one row matches.
func (c *Client) LookupID(ctx context.Context, f *schema.Field, criteria Criteria) (any, error) {
	const op = "lookup id"
	if err := c.reference(op, f); err != nil {
		return nil, err
	}
	return c.lookupID(ctx, f, criteria)
}

func (c *Client) lookupID(ctx context.Context, f *schema.Field, criteria Criteria) (any, error) {
	const op = "lookup id"
	tt, tf := c.schema.TargetTable(f), c.schema.Target(f)
	for k := range criteria {
		if !tt.HasField(k) {
			return nil, usageErrorf(op, "criteria for %s: table %q has no field %q", f.FullName(), tt.Name, k)
		}
	}
	crit, err := c.lookupIDs(ctx, tt, criteria)
	if err != nil {
		return nil, err
	}
	sel, err := sql.Select(tf)
	if err != nil {
		return nil, usageError(op, err)
	}
	from, err := sql.From(c.schema, tt)
	if err != nil {
		return nil, usageError(op, err)
	}
	where, args, err := sql.Where(tt, crit)
	if err != nil {
		return nil, usageError(op, err)
	}
	limit, err := sql.Limit(sql.Window(0, 2))
	if err != nil {
		return nil, usageError(op, err)
	}
	rows, err := c.query(ctx, op, tt, sql.Statement(sel, from, where, limit), args)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, NewLookupError(tt.Name, crit, len(rows))
	}
	c.log.Trace(ctx, "resolved reference", "field", f.FullName(), "id", rows[0][tf.Name])
	return rows[0][tf.Name], nil
}

// LookupIDs returns a copy of row with the criteria held by reference
// columns replaced by the identifiers of the matching rows. Scalar values
// are taken as identifiers and kept. Columns are resolved concurrently and
// the first failure aborts the operation.
func (c *Client) LookupIDs(ctx context.Context, table schema.TableRef, row Row) (Row, error) {
	t, err := c.table("lookup ids", table)
	if err != nil {
		return nil, err
	}
	return c.lookupIDs(ctx, t, row)
}

func (c *Client) lookupIDs(ctx context.Context, t *schema.Table, row Row) (Row, error) {
	type resolved struct {
		name string
		id   any
	}
	var (
		fks     []*schema.Field
		results []resolved
	)
	for _, f := range t.ForeignKeys() {
		if _, ok := row[f.Name].(map[string]any); ok {
			fks = append(fks, f)
		}
	}
	out := maps.Clone(row)
	if len(fks) == 0 {
		return out, nil
	}
	results = make([]resolved, len(fks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, f := range fks {
		g.Go(func() error {
			id, err := c.lookupID(ctx, f, row[f.Name].(map[string]any))
			if err != nil {
				return err
			}
			results[i] = resolved{name: f.Name, id: id}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, r := range results {
		out[r.name] = r.id
	}
	return out, nil
}

// LookupValue returns the row referenced by f whose referenced column
// equals id, with its own references hydrated one level less deep.
func (c *Client) LookupValue(ctx context.Context, f *schema.Field, id any) (Row, error) {
	if err := c.reference("lookup value", f); err != nil {
		return nil, err
	}
	return c.lookupValue(ctx, f, id, c.depth)
}

func (c *Client) lookupValue(ctx context.Context, f *schema.Field, id any, depth int) (Row, error) {
	tt, tf := c.schema.TargetTable(f), c.schema.Target(f)
	o := &loadOptions{lookup: true, depth: depth - 1, rng: sql.Window(0, 2)}
	return c.load(ctx, tt, Criteria{tf.Name: id}, o)
}

// LookupValues returns a copy of row with the identifiers held by
// reference columns replaced by the referenced rows. Null values and
// values that already are rows are kept.
func (c *Client) LookupValues(ctx context.Context, table schema.TableRef, row Row) (Row, error) {
	t, err := c.table("lookup values", table)
	if err != nil {
		return nil, err
	}
	return c.lookupValues(ctx, t, row, c.depth)
}

func (c *Client) lookupValues(ctx context.Context, t *schema.Table, row Row, depth int) (Row, error) {
	var fks []*schema.Field
	for _, f := range t.ForeignKeys() {
		v, ok := row[f.Name]
		if !ok || v == nil {
			continue
		}
		if _, ok := v.(map[string]any); ok {
			continue
		}
		fks = append(fks, f)
	}
	out := maps.Clone(row)
	if len(fks) == 0 || depth <= 0 {
		return out, nil
	}
	values := make([]Row, len(fks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, f := range fks {
		g.Go(func() error {
			v, err := c.lookupValue(ctx, f, row[f.Name], depth)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, f := range fks {
		out[f.Name] = values[i]
	}
	return out, nil
}
