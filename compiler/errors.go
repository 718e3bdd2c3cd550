package compiler

import (
	"errors"
	"strings"
)

// ErrInvalidSchema indicates a schema definition error.
var ErrInvalidSchema = errors.New("fkorm: invalid schema")

// SchemaError represents a schema definition error.
type SchemaError struct {
	Table   string // Table name (if applicable)
	Field   string // Field name (if applicable)
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("fkorm: schema error")
	if e.Table != "" {
		b.WriteString(" on table ")
		b.WriteString(e.Table)
	}
	if e.Field != "" {
		b.WriteString(" field ")
		b.WriteString(e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidSchema
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(table, field, message string, cause error) *SchemaError {
	return &SchemaError{
		Table:   table,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// IsSchemaError reports whether the error is a SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}
