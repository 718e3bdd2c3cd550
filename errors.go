package fkorm

import (
	"errors"
	"fmt"

	"github.com/syssam/fkorm/dialect/sql/sqlgraph"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when no row matches the criteria of an
	// operation that expects exactly one.
	ErrNotFound = errors.New("fkorm: row not found")

	// ErrNotSingular is returned when more than one row matches the
	// criteria of an operation that expects exactly one.
	ErrNotSingular = errors.New("fkorm: row not singular")

	// ErrSave is returned when a row could not be saved.
	ErrSave = errors.New("fkorm: failed to save row")

	// ErrInvalidArgument is returned for malformed calls. It is reported
	// before any statement is sent to the database.
	ErrInvalidArgument = errors.New("fkorm: invalid argument")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("fkorm: cannot start a transaction within a transaction")
)

// LookupError is returned when criteria match no row or more than one row.
type LookupError struct {
	Table    string
	Criteria any
	count    int
}

// NewLookupError returns a LookupError for the number of matched rows.
// Counts above one are reported as 2, the most a lookup ever fetches.
func NewLookupError(table string, criteria any, count int) *LookupError {
	return &LookupError{Table: table, Criteria: criteria, count: min(count, 2)}
}

// Error returns the error string.
func (e *LookupError) Error() string {
	if e.count == 0 {
		return fmt.Sprintf("fkorm: no row in %q matches %v", e.Table, e.Criteria)
	}
	return fmt.Sprintf("fkorm: more than one row in %q matches %v", e.Table, e.Criteria)
}

// Is reports whether the target error matches the lookup outcome.
// This allows errors.Is(err, ErrNotFound) and errors.Is(err, ErrNotSingular).
func (e *LookupError) Is(err error) bool {
	if e.count == 0 {
		return err == ErrNotFound
	}
	return err == ErrNotSingular
}

// Count returns the number of matched rows: 0 or 2.
func (e *LookupError) Count() int {
	return e.count
}

// IsNotFound returns true if the error reports that no row matched.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// IsNotSingular returns true if the error reports that several rows matched.
func IsNotSingular(err error) bool {
	return err != nil && errors.Is(err, ErrNotSingular)
}

// SaveError is returned when a row could not be saved.
type SaveError struct {
	Table string
	Mode  SaveMode
	Err   error // Optional cause
}

// Error returns the error string.
func (e *SaveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fkorm: failed to save row in %q (%s): %v", e.Table, e.Mode, e.Err)
	}
	return fmt.Sprintf("fkorm: failed to save row in %q (%s)", e.Table, e.Mode)
}

// Unwrap returns the underlying error.
func (e *SaveError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error is ErrSave.
func (e *SaveError) Is(err error) bool {
	return err == ErrSave
}

// QueryError wraps an error reported by the database with the statement
// that caused it.
type QueryError struct {
	Table     string
	Op        string // Operation, e.g. "load", "save", "delete"
	Statement string
	Err       error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	return fmt.Sprintf("fkorm: %s %q: %v (statement: %s)", e.Op, e.Table, e.Err, e.Statement)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// UsageError reports a malformed call, such as an unknown table or column,
// an invalid save mode or an invalid range.
type UsageError struct {
	Op  string
	Err error
}

// Error returns the error string.
func (e *UsageError) Error() string {
	return fmt.Sprintf("fkorm: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *UsageError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error is ErrInvalidArgument.
func (e *UsageError) Is(err error) bool {
	return err == ErrInvalidArgument
}

func usageError(op string, err error) error {
	return &UsageError{Op: op, Err: err}
}

func usageErrorf(op, format string, args ...any) error {
	return &UsageError{Op: op, Err: fmt.Errorf(format, args...)}
}

// RollbackError is returned when a rollback triggered by Err failed.
type RollbackError struct {
	Err      error // Original error that triggered rollback
	Rollback error // Error returned by the rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("fkorm: %v: rollback failed: %v", e.Err, e.Rollback)
}

// Unwrap returns both underlying errors.
func (e *RollbackError) Unwrap() []error {
	return []error{e.Err, e.Rollback}
}

// IsConstraintError returns true if the error is caused by a violated
// database constraint.
func IsConstraintError(err error) bool {
	return sqlgraph.IsConstraintError(err)
}

// IsUniqueConstraintError returns true if the error is caused by a
// duplicate primary or unique key.
func IsUniqueConstraintError(err error) bool {
	return sqlgraph.IsUniqueConstraintError(err)
}

// IsForeignKeyConstraintError returns true if the error is caused by a
// violated foreign key.
func IsForeignKeyConstraintError(err error) bool {
	return sqlgraph.IsForeignKeyConstraintError(err)
}
