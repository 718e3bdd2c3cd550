// Package sql implements the dialect.Driver interface on top of
// database/sql, and the clause builders used to compose MySQL statements
// from a compiled schema.
//
// # Clauses
//
// Every builder returns one clause. Statement joins them, skipping empty
// ones, so optional clauses need no special casing:
//
//	sel, _ := sql.Select()
//	from, _ := sql.From(s, schema.TableName("users"))
//	where, args, _ := sql.Where(users, map[string]any{"username": "mark"})
//	limit, _ := sql.Limit(sql.Window(0, 2))
//	stmt := sql.Statement(sel, from, where, limit)
//	// SELECT * FROM `users` WHERE `username` = ? LIMIT 2 OFFSET 0
//
// Identifiers are backtick-quoted by Quote. Values are always bound as
// parameters, except for column defaults in DDL, which are rendered by
// QuoteValue.
//
// # Drivers
//
// OpenDB wraps a pooled *sql.DB and OpenConn a single *sql.Conn, which is
// required when statements change session state. NewDebugDriver wraps
// either one and writes every statement to a diag.Logger at trace level.
// ScanMaps reads result sets into rows keyed by column name.
package sql
