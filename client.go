// Package fkorm maps rows of a compiled schema onto a MySQL database.
//
// Rows are plain maps from column name to value. A column referencing
// another table may hold either the raw identifier of the referenced row
// or criteria selecting it; criteria are resolved to identifiers before
// a row is written or a query is run:
//
//	client := fkorm.New(s, sql.OpenDB(dialect.MySQL, db))
//	saved, err := client.Save(ctx, schema.TableName("users"), fkorm.Row{
//		"username": "mark",
//		"country":  fkorm.Row{"name": "Estonia"},
//	})
//
// Reads replace identifiers with the referenced rows, up to a configured
// depth.
package fkorm

import (
	"context"
	"maps"

	"github.com/syssam/fkorm/diag"
	"github.com/syssam/fkorm/dialect"
	"github.com/syssam/fkorm/dialect/sql"
	"github.com/syssam/fkorm/schema"
)

type (
	// Row is a table row keyed by column name.
	Row = map[string]any
	// Criteria selects rows by column equality. The value of a reference
	// column may be nested criteria on the referenced table.
	Criteria = map[string]any
)

// Defaults for client options.
const (
	DefaultLookupDepth       = 3
	DefaultLookupConcurrency = 4
)

// config holds the configuration shared by a client and its transactions.
type config struct {
	driver dialect.Driver
	log    *diag.Logger
	// depth limits how many levels of references are hydrated on reads.
	depth int
	// limit bounds concurrent lookups; -1 means unbounded.
	limit int
}

// Option configures the client.
type Option func(*config)

// WithLogger sets the diagnostics sink. Statements are logged at trace level.
func WithLogger(l *diag.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithLookupDepth sets how many levels of references are hydrated by
// reads. Zero disables hydration.
func WithLookupDepth(n int) Option {
	return func(c *config) {
		c.depth = max(n, 0)
	}
}

// WithLookupConcurrency bounds the number of lookups run at the same time.
// n <= 0 removes the bound.
func WithLookupConcurrency(n int) Option {
	return func(c *config) {
		if n <= 0 {
			n = -1
		}
		c.limit = n
	}
}

// Client runs operations on the tables of a compiled schema.
type Client struct {
	config
	schema *schema.Schema
}

// New returns a client for s using drv. When the logger traces, drv is
// wrapped with a debug driver logging every statement.
func New(s *schema.Schema, drv dialect.Driver, opts ...Option) *Client {
	cfg := config{
		driver: drv,
		log:    diag.New(nil, diag.LevelWarn),
		depth:  DefaultLookupDepth,
		limit:  DefaultLookupConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Client{config: cfg, schema: s}
	if cfg.log.Enabled(diag.LevelTrace) {
		c = c.Debug()
	}
	return c
}

// Debug returns a new client that logs every statement at trace level.
func (c *Client) Debug() *Client {
	if _, ok := c.driver.(*sql.DebugDriver); ok {
		return c
	}
	log := c.log
	if !log.Enabled(diag.LevelTrace) {
		log = diag.New(nil, diag.LevelTrace)
	}
	cfg := c.config
	cfg.driver = sql.NewDebugDriver(c.driver, sql.DebugWithLogger(log))
	return &Client{config: cfg, schema: c.schema}
}

// Schema returns the compiled schema.
func (c *Client) Schema() *schema.Schema {
	return c.schema
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.driver.Close()
}

// table resolves ref, reporting failures as usage errors of op.
func (c *Client) table(op string, ref schema.TableRef) (*schema.Table, error) {
	t, err := c.schema.Resolve(ref)
	if err != nil {
		return nil, usageError(op, err)
	}
	return t, nil
}

// criteria normalizes v into criteria on t. A nil v matches every row and
// a scalar v matches the single-column primary key.
func (c *Client) criteria(op string, t *schema.Table, v any) (Criteria, error) {
	var crit Criteria
	switch v := v.(type) {
	case nil:
		crit = Criteria{}
	case map[string]any:
		crit = maps.Clone(v)
	default:
		pk, ok := t.SinglePrimary()
		if !ok {
			return nil, usageErrorf(op, "table %q has no single-column primary key to match %v", t.Name, v)
		}
		crit = Criteria{pk: v}
	}
	for k := range crit {
		if !t.HasField(k) {
			return nil, usageErrorf(op, "table %q has no field %q", t.Name, k)
		}
	}
	return crit, nil
}

// query runs a statement returning rows.
func (c *Client) query(ctx context.Context, op string, t *schema.Table, stmt string, args []any) ([]Row, error) {
	var rows sql.Rows
	if err := c.driver.Query(ctx, stmt, args, &rows); err != nil {
		return nil, &QueryError{Table: t.Name, Op: op, Statement: stmt, Err: err}
	}
	result, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, &QueryError{Table: t.Name, Op: op, Statement: stmt, Err: err}
	}
	return result, nil
}

// exec runs a statement returning no rows.
func (c *Client) exec(ctx context.Context, op string, t *schema.Table, stmt string, args []any) (sql.Result, error) {
	var res sql.Result
	if err := c.driver.Exec(ctx, stmt, args, &res); err != nil {
		return nil, &QueryError{Table: t.Name, Op: op, Statement: stmt, Err: err}
	}
	return res, nil
}
