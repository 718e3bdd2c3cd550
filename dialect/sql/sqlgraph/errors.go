// Package sqlgraph classifies errors reported by the MySQL backend.
package sqlgraph

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return hasNumber(err, mysqlDuplicateEntry)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return hasNumber(err, mysqlForeignKeyParent, mysqlForeignKeyChild)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return hasNumber(err, mysqlCheckConstraintViolate)
}

// hasNumber reports whether err carries one of the given MySQL error
// numbers. Errors that lost their type on the way, e.g. through a proxy,
// are matched on the "Error NNNN" text the driver produces.
func hasNumber(err error, numbers ...uint16) bool {
	if err == nil {
		return false
	}
	var e *mysql.MySQLError
	if errors.As(err, &e) {
		for _, n := range numbers {
			if e.Number == n {
				return true
			}
		}
		return false
	}
	msg := err.Error()
	for _, n := range numbers {
		if strings.Contains(msg, "Error "+strconv.Itoa(int(n))) {
			return true
		}
	}
	return false
}
