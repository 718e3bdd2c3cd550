package fkorm

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/fkorm/dialect/sql"
	"github.com/syssam/fkorm/schema"
)

// LoadOption configures Load and LoadMany.
type LoadOption func(*loadOptions)

type loadOptions struct {
	fields []schema.ColumnRef
	sort   []schema.ColumnRef
	rng    sql.Range
	lookup bool
	depth  int
}

// WithFields restricts the selected columns.
func WithFields(fields ...schema.ColumnRef) LoadOption {
	return func(o *loadOptions) {
		o.fields = fields
	}
}

// WithSort orders the rows. Column names may be prefixed with '+' or '-'.
// Without it the table's default sort applies.
func WithSort(sort ...schema.ColumnRef) LoadOption {
	return func(o *loadOptions) {
		o.sort = sort
	}
}

// WithRange selects a window of rows.
func WithRange(r sql.Range) LoadOption {
	return func(o *loadOptions) {
		o.rng = r
	}
}

// WithFirst sets the offset of the first row. It must be combined with
// WithLast or WithCount.
func WithFirst(n int) LoadOption {
	return func(o *loadOptions) {
		o.rng.First = &n
	}
}

// WithLast sets the exclusive end of the window.
func WithLast(n int) LoadOption {
	return func(o *loadOptions) {
		o.rng.Last = &n
	}
}

// WithCount sets the number of rows in the window.
func WithCount(n int) LoadOption {
	return func(o *loadOptions) {
		o.rng.Count = &n
	}
}

// WithLimit selects count rows starting at first.
func WithLimit(first, count int) LoadOption {
	return WithRange(sql.Window(first, count))
}

// WithoutLookup returns reference columns as raw identifiers.
func WithoutLookup() LoadOption {
	return func(o *loadOptions) {
		o.lookup = false
	}
}

func (c *Client) loadOptions(opts []LoadOption) *loadOptions {
	o := &loadOptions{lookup: true, depth: c.depth}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load returns the single row of table matching criteria. criteria is a
// Criteria map or the value of a single-column primary key. A LookupError
// is returned when no row or more than one row matches.
func (c *Client) Load(ctx context.Context, table schema.TableRef, criteria any, opts ...LoadOption) (Row, error) {
	const op = "load"
	t, err := c.table(op, table)
	if err != nil {
		return nil, err
	}
	crit, err := c.criteria(op, t, criteria)
	if err != nil {
		return nil, err
	}
	o := c.loadOptions(opts)
	o.rng = sql.Window(0, 2)
	return c.load(ctx, t, crit, o)
}

func (c *Client) load(ctx context.Context, t *schema.Table, crit Criteria, o *loadOptions) (Row, error) {
	rows, err := c.selectRows(ctx, "load", t, crit, o)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, NewLookupError(t.Name, crit, len(rows))
	}
	if err := c.decode(ctx, t, rows, o); err != nil {
		return nil, err
	}
	return rows[0], nil
}

// LoadMany returns the rows of table matching criteria. Structured
// columns are decoded and, unless WithoutLookup is given, reference
// columns are replaced by the referenced rows.
func (c *Client) LoadMany(ctx context.Context, table schema.TableRef, criteria any, opts ...LoadOption) ([]Row, error) {
	const op = "load many"
	t, err := c.table(op, table)
	if err != nil {
		return nil, err
	}
	crit, err := c.criteria(op, t, criteria)
	if err != nil {
		return nil, err
	}
	o := c.loadOptions(opts)
	rows, err := c.selectRows(ctx, op, t, crit, o)
	if err != nil {
		return nil, err
	}
	if err := c.decode(ctx, t, rows, o); err != nil {
		return nil, err
	}
	return rows, nil
}

// selectRows builds and runs the SELECT for crit. Clauses are built before
// reference criteria are resolved so that malformed calls fail without I/O.
func (c *Client) selectRows(ctx context.Context, op string, t *schema.Table, crit Criteria, o *loadOptions) ([]Row, error) {
	sel, err := sql.Select(o.fields...)
	if err != nil {
		return nil, usageError(op, err)
	}
	from, err := sql.From(c.schema, t)
	if err != nil {
		return nil, usageError(op, err)
	}
	order, err := sql.OrderBy(t, o.sort...)
	if err != nil {
		return nil, usageError(op, err)
	}
	var limit string
	if !o.rng.IsZero() {
		if limit, err = sql.Limit(o.rng); err != nil {
			return nil, usageError(op, err)
		}
	}
	for _, f := range o.fields {
		name, _ := schema.ColumnOf(f)
		if !t.HasField(name) {
			return nil, usageErrorf(op, "table %q has no field %q", t.Name, name)
		}
	}
	crit, err = c.lookupIDs(ctx, t, crit)
	if err != nil {
		return nil, err
	}
	where, args, err := sql.Where(t, crit)
	if err != nil {
		return nil, usageError(op, err)
	}
	return c.query(ctx, op, t, sql.Statement(sel, from, where, order, limit), args)
}

// decode deserializes structured columns and hydrates references of rows
// in place.
func (c *Client) decode(ctx context.Context, t *schema.Table, rows []Row, o *loadOptions) error {
	for _, row := range rows {
		for _, f := range t.Structured() {
			v, ok := row[f.Name]
			if !ok {
				continue
			}
			dv, err := f.Deserialize(v)
			if err != nil {
				return err
			}
			row[f.Name] = dv
		}
	}
	if !o.lookup || o.depth <= 0 || len(t.ForeignKeys()) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, row := range rows {
		g.Go(func() error {
			hydrated, err := c.lookupValues(ctx, t, row, o.depth)
			if err != nil {
				return err
			}
			rows[i] = hydrated
			return nil
		})
	}
	return g.Wait()
}
