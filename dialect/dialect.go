package dialect

import (
	"context"
	"database/sql/driver"
)

// MySQL is the only supported dialect. Statements rely on backtick
// quoting and ON DUPLICATE KEY UPDATE.
const MySQL = "mysql"

// ExecQuerier wraps the two query methods of a driver or transaction.
type ExecQuerier interface {
	// Exec executes a statement that returns no rows. v is nil or a
	// *sql.Result receiving the outcome.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows into v, a *sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for clients.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}
