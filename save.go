package fkorm

import (
	"context"
	"fmt"
	"maps"

	"github.com/syssam/fkorm/compiler/load"
	"github.com/syssam/fkorm/dialect/sql"
	"github.com/syssam/fkorm/schema"
)

// SaveMode governs whether a save may insert, must update, or may do either.
type SaveMode int

// Save modes.
const (
	// SaveAlways inserts the row or updates the row with the same key.
	SaveAlways SaveMode = iota
	// SaveNew inserts the row and fails on a duplicate key.
	SaveNew
	// SaveExisting updates the row with the same primary key.
	SaveExisting
)

// String returns the name of the mode.
func (m SaveMode) String() string {
	switch m {
	case SaveAlways:
		return "always"
	case SaveNew:
		return "new"
	case SaveExisting:
		return "existing"
	default:
		return fmt.Sprintf("SaveMode(%d)", int(m))
	}
}

// SaveOption configures Save, SaveMany and SaveMultipleTables.
type SaveOption func(*saveOptions)

type saveOptions struct {
	mode SaveMode
}

// WithSaveMode sets the save mode. The default is SaveAlways.
func WithSaveMode(m SaveMode) SaveOption {
	return func(o *saveOptions) {
		o.mode = m
	}
}

func newSaveOptions(opts []SaveOption) (*saveOptions, error) {
	o := &saveOptions{mode: SaveAlways}
	for _, opt := range opts {
		opt(o)
	}
	if o.mode < SaveAlways || o.mode > SaveExisting {
		return nil, usageErrorf("save", "invalid save mode %s", o.mode)
	}
	return o, nil
}

// Save writes row to table and returns the stored row: a copy of row with
// reference criteria replaced by identifiers and, for inserts into a table
// with an auto-increment column, the generated identifier. row itself is
// not modified. A SaveError is returned when no row was affected, except
// for SaveAlways: without ClientFoundRows MySQL reports 0 for an upsert that
// left the row unchanged.
func (c *Client) Save(ctx context.Context, table schema.TableRef, row Row, opts ...SaveOption) (Row, error) {
	t, err := c.table("save", table)
	if err != nil {
		return nil, err
	}
	o, err := newSaveOptions(opts)
	if err != nil {
		return nil, err
	}
	return c.save(ctx, t, row, o)
}

func (c *Client) save(ctx context.Context, t *schema.Table, row Row, o *saveOptions) (Row, error) {
	const op = "save"
	if len(row) == 0 {
		return nil, usageErrorf(op, "empty row for table %q", t.Name)
	}
	keys, err := sql.RowColumns(t, row)
	if err != nil {
		return nil, usageError(op, err)
	}
	if o.mode == SaveExisting {
		if err := checkExisting(t, row); err != nil {
			return nil, &SaveError{Table: t.Name, Mode: o.mode, Err: err}
		}
	}
	saved, err := c.lookupIDs(ctx, t, row)
	if err != nil {
		return nil, err
	}
	stored := maps.Clone(saved)
	for _, f := range t.Structured() {
		if v, ok := stored[f.Name]; ok {
			if stored[f.Name], err = f.Serialize(v); err != nil {
				return nil, usageError(op, err)
			}
		}
	}
	stmt, args, err := c.saveStatement(t, keys, stored, o.mode)
	if err != nil {
		return nil, usageError(op, err)
	}
	res, err := c.exec(ctx, op, t, stmt, args)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, &SaveError{Table: t.Name, Mode: o.mode, Err: err}
	}
	if n == 0 && o.mode != SaveAlways {
		return nil, &SaveError{Table: t.Name, Mode: o.mode}
	}
	if ai := t.AutoIncrement; ai != "" && o.mode != SaveExisting && saved[ai] == nil {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			saved[ai] = id
		}
	}
	c.log.Trace(ctx, "saved row", "table", t.Name, "mode", o.mode.String(), "affected", n)
	return saved, nil
}

// checkExisting reports whether row can update an existing row of t.
func checkExisting(t *schema.Table, row Row) error {
	if len(t.Primary) == 0 {
		return fmt.Errorf("table %q has no primary key", t.Name)
	}
	for _, pk := range t.Primary {
		if row[pk] == nil {
			return fmt.Errorf("missing primary key column %q", pk)
		}
	}
	if len(row) <= len(t.Primary) {
		return fmt.Errorf("no column to update besides the primary key")
	}
	return nil
}

func (c *Client) saveStatement(t *schema.Table, keys []string, row Row, mode SaveMode) (string, []any, error) {
	if mode == SaveExisting {
		var set []string
		pk := make(Criteria, len(t.Primary))
		for _, k := range keys {
			if t.IsPrimary(k) {
				pk[k] = row[k]
			} else {
				set = append(set, k)
			}
		}
		update, err := sql.Update(c.schema, t)
		if err != nil {
			return "", nil, err
		}
		assign, args, err := sql.Set(t, set, row)
		if err != nil {
			return "", nil, err
		}
		where, wargs, err := sql.Where(t, pk)
		if err != nil {
			return "", nil, err
		}
		return sql.Statement(update, assign, where), append(args, wargs...), nil
	}
	insert, err := sql.InsertInto(c.schema, t)
	if err != nil {
		return "", nil, err
	}
	assign, args, err := sql.Set(t, keys, row)
	if err != nil {
		return "", nil, err
	}
	var upsert string
	if mode == SaveAlways {
		if upsert, err = sql.OnDuplicateKeyUpdate(t, keys); err != nil {
			return "", nil, err
		}
	}
	return sql.Statement(insert, assign, upsert), args, nil
}

// SaveMany saves rows one after the other and stops at the first failure.
// It returns the rows saved so far.
func (c *Client) SaveMany(ctx context.Context, table schema.TableRef, rows []Row, opts ...SaveOption) ([]Row, error) {
	t, err := c.table("save many", table)
	if err != nil {
		return nil, err
	}
	o, err := newSaveOptions(opts)
	if err != nil {
		return nil, err
	}
	saved := make([]Row, 0, len(rows))
	for i, row := range rows {
		r, err := c.save(ctx, t, row, o)
		if err != nil {
			return saved, fmt.Errorf("row %d: %w", i, err)
		}
		saved = append(saved, r)
	}
	return saved, nil
}

// TableRows holds rows to be saved into one table.
type TableRows struct {
	Table schema.TableRef
	Rows  []Row
}

// Tables converts a default-data file into the input of SaveMultipleTables.
func Tables(data load.Dataset) []TableRows {
	out := make([]TableRows, len(data))
	for i, d := range data {
		out[i] = TableRows{Table: schema.TableName(d.Table), Rows: d.Rows}
	}
	return out
}

// SaveMultipleTables saves the rows of each table in order inside a single
// transaction. Rows may reference rows of earlier tables by criteria. On
// failure the transaction is rolled back. When the client is already bound
// to a transaction the rows are saved within it.
func (c *Client) SaveMultipleTables(ctx context.Context, data []TableRows, opts ...SaveOption) error {
	const op = "save multiple tables"
	o, err := newSaveOptions(opts)
	if err != nil {
		return err
	}
	tables := make([]*schema.Table, len(data))
	for i, d := range data {
		if tables[i], err = c.table(op, d.Table); err != nil {
			return err
		}
	}
	return c.WithTx(ctx, func(tx *Client) error {
		for i, d := range data {
			for j, row := range d.Rows {
				if _, err := tx.save(ctx, tables[i], row, o); err != nil {
					return fmt.Errorf("table %q row %d: %w", tables[i].Name, j, err)
				}
			}
			c.log.Info("saved rows", "table", tables[i].Name, "rows", len(d.Rows))
		}
		return nil
	})
}
