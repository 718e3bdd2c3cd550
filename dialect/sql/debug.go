package sql

import (
	"context"
	"sync/atomic"

	"github.com/syssam/fkorm/diag"
	"github.com/syssam/fkorm/dialect"
)

// connIDs numbers debug drivers so that interleaved output from several
// connections can be told apart.
var connIDs atomic.Uint64

// DebugDriver traces every statement of the wrapped driver.
type DebugDriver struct {
	dialect.Driver
	log     *diag.Logger
	conn    uint64
	queries *atomic.Uint64
}

// DebugOption configures a DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLogger sets the diagnostics sink. Statements are written at
// trace level.
func DebugWithLogger(l *diag.Logger) DebugOption {
	return func(d *DebugDriver) {
		d.log = l
	}
}

// NewDebugDriver returns drv with statement tracing. Without
// DebugWithLogger records go to stderr.
//
//	drv := sql.OpenDB(dialect.MySQL, db)
//	debug := sql.NewDebugDriver(drv, sql.DebugWithLogger(diag.New(nil, diag.LevelTrace)))
func NewDebugDriver(drv dialect.Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver:  drv,
		log:     diag.New(nil, diag.LevelTrace),
		conn:    connIDs.Add(1),
		queries: new(atomic.Uint64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ConnID returns the connection number used in log records.
func (d *DebugDriver) ConnID() uint64 { return d.conn }

// Query traces the statement and its failure.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	id := d.queries.Add(1)
	d.log.Trace(ctx, "query", "conn", d.conn, "query", id, "sql", query, "args", args)
	err := d.Driver.Query(ctx, query, args, v)
	if err != nil {
		d.log.Trace(ctx, "query failed", "conn", d.conn, "query", id, "error", err)
	}
	return err
}

// Exec traces the statement and its failure.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	id := d.queries.Add(1)
	d.log.Trace(ctx, "exec", "conn", d.conn, "query", id, "sql", query, "args", args)
	err := d.Driver.Exec(ctx, query, args, v)
	if err != nil {
		d.log.Trace(ctx, "exec failed", "conn", d.conn, "query", id, "error", err)
	}
	return err
}

// Tx begins a traced transaction.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.log.Trace(ctx, "begin transaction", "conn", d.conn)
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &DebugTx{Tx: tx, d: d}, nil
}

// DebugTx traces the statements of a transaction.
type DebugTx struct {
	dialect.Tx
	d *DebugDriver
}

// Query traces the statement.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	id := tx.d.queries.Add(1)
	tx.d.log.Trace(ctx, "tx query", "conn", tx.d.conn, "query", id, "sql", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec traces the statement.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	id := tx.d.queries.Add(1)
	tx.d.log.Trace(ctx, "tx exec", "conn", tx.d.conn, "query", id, "sql", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit traces the commit.
func (tx *DebugTx) Commit() error {
	tx.d.log.Trace(context.Background(), "commit transaction", "conn", tx.d.conn)
	return tx.Tx.Commit()
}

// Rollback traces the rollback.
func (tx *DebugTx) Rollback() error {
	tx.d.log.Trace(context.Background(), "rollback transaction", "conn", tx.d.conn)
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
