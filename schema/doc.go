// Package schema holds the compiled relational schema: tables, their fields
// and the foreign-key references between them.
//
// A Schema is produced once by the compiler package and is read-only
// afterwards, so it can be shared by any number of concurrent callers.
// Tables and fields are stored in an arena: a Field records the index of
// its owning Table, and a Reference records the table and field indices of
// its target instead of holding pointers back into the graph.
//
// # Table and column references
//
// Operations that accept a table take a TableRef, which is either a
// TableName or a *Table obtained from the same Schema:
//
//	users, err := s.Resolve(schema.TableName("users"))
//
// Column lists and sort specifications take a ColumnRef, which is either a
// ColumnName or a *Field. A ColumnName may carry a leading '+' or '-' to
// request ascending or descending order in sort specifications.
//
// # Structured values
//
// Fields declared with a document type (JSON, JSON(n) or MSGPACK) carry a
// Codec. Field.Serialize and Field.Deserialize convert between in-memory
// values and their stored representation, substituting the field default
// when the value is absent.
package schema
