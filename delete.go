package fkorm

import (
	"context"

	"github.com/syssam/fkorm/dialect/sql"
	"github.com/syssam/fkorm/schema"
)

// Delete removes the single row of table matching criteria. The match is
// checked first, so criteria matching several rows delete nothing and
// return a LookupError, as does criteria matching no row. The row is then
// deleted by primary key.
func (c *Client) Delete(ctx context.Context, table schema.TableRef, criteria any) error {
	const op = "delete"
	t, err := c.table(op, table)
	if err != nil {
		return err
	}
	if len(t.Primary) == 0 {
		return usageErrorf(op, "table %q has no primary key", t.Name)
	}
	crit, err := c.criteria(op, t, criteria)
	if err != nil {
		return err
	}
	o := &loadOptions{fields: schema.Columns(t.Primary...), rng: sql.Window(0, 2)}
	rows, err := c.selectRows(ctx, op, t, crit, o)
	if err != nil {
		return err
	}
	if len(rows) != 1 {
		return NewLookupError(t.Name, crit, len(rows))
	}
	where, args, err := sql.Where(t, rows[0])
	if err != nil {
		return usageError(op, err)
	}
	from, err := sql.From(c.schema, t)
	if err != nil {
		return usageError(op, err)
	}
	res, err := c.exec(ctx, op, t, sql.Statement(sql.Delete(), from, where), args)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewLookupError(t.Name, crit, 0)
	}
	return nil
}

// DeleteMany removes every row of table matching criteria and returns the
// number of deleted rows. Nil criteria delete every row.
func (c *Client) DeleteMany(ctx context.Context, table schema.TableRef, criteria any) (int64, error) {
	const op = "delete many"
	t, err := c.table(op, table)
	if err != nil {
		return 0, err
	}
	crit, err := c.criteria(op, t, criteria)
	if err != nil {
		return 0, err
	}
	from, err := sql.From(c.schema, t)
	if err != nil {
		return 0, usageError(op, err)
	}
	crit, err = c.lookupIDs(ctx, t, crit)
	if err != nil {
		return 0, err
	}
	where, args, err := sql.Where(t, crit)
	if err != nil {
		return 0, usageError(op, err)
	}
	if where == "" {
		c.log.Warn("deleting every row", "table", t.Name)
	}
	res, err := c.exec(ctx, op, t, sql.Statement(sql.Delete(), from, where), args)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &QueryError{Table: t.Name, Op: op, Err: err}
	}
	return n, nil
}
