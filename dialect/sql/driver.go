package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/fkorm/dialect"
)

// ErrTxDone is returned by operations on a committed or rolled back transaction.
var ErrTxDone = sql.ErrTxDone

// escapeStringValue doubles quotes and backslashes in a string literal.
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// QuoteValue renders v as a SQL literal. It is used where bound parameters
// are not accepted, such as column defaults in DDL.
func QuoteValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []byte:
		return "'" + escapeStringValue(string(v)) + "'"
	case string:
		return "'" + escapeStringValue(v) + "'"
	default:
		return "'" + escapeStringValue(fmt.Sprint(v)) + "'"
	}
}

// Driver runs statements of one dialect through database/sql.
type Driver struct {
	Conn
	dialect string
}

// NewDriver returns a Driver executing on c.
func NewDriver(dialect string, c Conn) *Driver {
	return &Driver{dialect: dialect, Conn: c}
}

// Open opens a pool with database/sql and wraps it.
func Open(dialect, source string) (*Driver, error) {
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(dialect, db), nil
}

// OpenDB returns a Driver over the pool db.
func OpenDB(dialect string, db *sql.DB) *Driver {
	return NewDriver(dialect, Conn{db})
}

// OpenConn wraps a single pinned connection with a Driver. Session state
// such as SET statements persists across calls, which a pooled *sql.DB
// does not guarantee.
func OpenConn(dialect string, conn *sql.Conn) *Driver {
	return NewDriver(dialect, Conn{conn})
}

// DB returns the pool, or nil when d runs on a single connection.
func (d Driver) DB() *sql.DB {
	db, _ := d.ExecQuerier.(*sql.DB)
	return db
}

// Dialect returns the dialect name. MySQL variants report dialect.MySQL.
func (d Driver) Dialect() string {
	if strings.HasPrefix(d.dialect, dialect.MySQL) {
		return dialect.MySQL
	}
	return d.dialect
}

// Tx begins a transaction with default options.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// beginner is implemented by *sql.DB and *sql.Conn.
type beginner interface {
	BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
}

// BeginTx begins a transaction. The wrapped executor must be a pool or a
// connection.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	b, ok := d.ExecQuerier.(beginner)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: %T cannot begin transactions", d.ExecQuerier)
	}
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Conn: Conn{tx}, Tx: tx}, nil
}

// Close releases the pool or the connection.
func (d *Driver) Close() error {
	if c, ok := d.ExecQuerier.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Tx is a database/sql transaction satisfying dialect.Tx.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier is the subset of *sql.DB, *sql.Conn and *sql.Tx used by Conn.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier.
type Conn struct {
	ExecQuerier
}

// argList asserts the argument list passed through dialect.ExecQuerier.
func argList(args any) ([]any, error) {
	argv, ok := args.([]any)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: args must be []any, got %T", args)
	}
	return argv, nil
}

// Exec runs a statement. v is nil or a *sql.Result receiving the outcome.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, err := argList(args)
	if err != nil {
		return err
	}
	res, ok := v.(*sql.Result)
	if v != nil && !ok {
		return fmt.Errorf("dialect/sql: exec target must be *sql.Result, got %T", v)
	}
	r, err := c.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if ok {
		*res = r
	}
	return nil
}

// Query runs a query and stores the result set in v, which must be a *Rows.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: query target must be *Rows, got %T", v)
	}
	argv, err := argList(args)
	if err != nil {
		return err
	}
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows holds a result set by pointer so that its lock is never copied.
	Rows struct{ ColumnScanner }
	// Result is sql.Result.
	Result = sql.Result
	// TxOptions is sql.TxOptions.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the part of *sql.Rows that ScanMaps reads from.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}
