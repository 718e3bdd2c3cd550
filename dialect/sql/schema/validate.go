package schema

import (
	"fmt"
	"strings"

	fkschema "github.com/syssam/fkorm/schema"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(f *fkschema.Field, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: f.TableName, Column: f.Name, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(f *fkschema.Field, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Table: f.TableName, Column: f.Name, Message: fmt.Sprintf(format, args...)})
}

// ValidateTable checks a compiled table for definitions MySQL rejects when
// the table is created, and for tables the client cannot address by key.
func ValidateTable(s *fkschema.Schema, t *fkschema.Table) *ValidationResult {
	result := &ValidationResult{}
	if len(t.Primary) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: "table has no primary key",
		})
	}
	keys := make(map[string]bool)
	for _, f := range t.Fields {
		for _, k := range []string{f.IndexKey, f.Unique} {
			if k == "" {
				continue
			}
			if keys[k] {
				result.errorf(f, "duplicate key name %q", k)
			}
			keys[k] = true
			if f.Codec != nil {
				result.warnf(f, "structured column %s cannot be keyed without a prefix length", f.Type)
			}
		}
		if f.Ref == nil {
			continue
		}
		if !f.Nullable && (f.Ref.OnDelete == fkschema.SetNull || f.Ref.OnUpdate == fkschema.SetNull) {
			result.errorf(f, "SET NULL reference action on a NOT NULL column")
		}
		target := s.Target(f)
		owner := s.Owner(target)
		if !keyed(owner, target) {
			result.warnf(f, "referenced column %s is neither a primary key nor unique", target.FullName())
		}
		if target.Type != f.Type {
			result.warnf(f, "type %s differs from referenced column type %s", f.Type, target.Type)
		}
	}
	return result
}

// keyed reports whether f leads an index of t.
func keyed(t *fkschema.Table, f *fkschema.Field) bool {
	return (len(t.Primary) > 0 && t.Primary[0] == f.Name) || f.Unique != "" || f.IndexKey != ""
}

// ValidateSchema validates all tables in a schema. Foreign key constraint
// names share one namespace per database, so duplicates across tables are
// errors.
func ValidateSchema(s *fkschema.Schema) *ValidationResult {
	result := &ValidationResult{}
	constraints := make(map[string]string)
	for _, t := range s.Tables {
		tableResult := ValidateTable(s, t)
		result.Errors = append(result.Errors, tableResult.Errors...)
		result.Warnings = append(result.Warnings, tableResult.Warnings...)
		for _, f := range t.ForeignKeys() {
			if prev, ok := constraints[f.Ref.Constraint]; ok {
				result.errorf(f, "foreign key constraint name %q already used by table %q", f.Ref.Constraint, prev)
				continue
			}
			constraints[f.Ref.Constraint] = t.Name
		}
	}
	return result
}
