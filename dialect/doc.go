// Package dialect defines the contracts between the client and the
// database driver.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// A Tx is an ExecQuerier bound to one connection until Commit or Rollback:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, clause builder and row scanning
//   - dialect/sql/schema: DDL generation and provisioning
//   - dialect/sql/sqlgraph: constraint error classification
package dialect
