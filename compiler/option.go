package compiler

import (
	"errors"

	"github.com/syssam/fkorm/diag"
)

// Option configures compilation.
type Option func(*config) error

type config struct {
	log      *diag.Logger
	database string
}

// WithLogger sets the diagnostics sink that receives compile warnings and
// trace output. Errors are always returned regardless of its level.
func WithLogger(l *diag.Logger) Option {
	return func(c *config) error {
		if l == nil {
			return errors.New("fkorm: nil logger")
		}
		c.log = l
		return nil
	}
}

// WithDatabase sets the database name recorded in the compiled schema.
func WithDatabase(name string) Option {
	return func(c *config) error {
		if name == "" {
			return errors.New("fkorm: database name cannot be empty")
		}
		c.database = name
		return nil
	}
}
