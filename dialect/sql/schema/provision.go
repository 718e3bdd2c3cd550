package schema

import (
	"context"
	"fmt"

	"github.com/syssam/fkorm/diag"
	"github.com/syssam/fkorm/dialect"
	fkschema "github.com/syssam/fkorm/schema"
)

// Option configures provisioning.
type Option func(*Provisioner)

// WithRecreateDatabase drops and recreates the database.
func WithRecreateDatabase(b bool) Option {
	return func(p *Provisioner) { p.recreateDB = b }
}

// WithRecreateTables drops and recreates every table.
func WithRecreateTables(b bool) Option {
	return func(p *Provisioner) { p.recreateTables = b }
}

// WithSkipDatabase leaves database creation to the caller, e.g. when the
// connection user cannot create databases.
func WithSkipDatabase() Option {
	return func(p *Provisioner) { p.skipDB = true }
}

// WithLogger sets the diagnostics sink.
func WithLogger(l *diag.Logger) Option {
	return func(p *Provisioner) { p.log = l }
}

// Provisioner creates the database and tables of a compiled schema.
type Provisioner struct {
	s              *fkschema.Schema
	log            *diag.Logger
	recreateDB     bool
	recreateTables bool
	skipDB         bool
}

// NewProvisioner returns a Provisioner for s.
func NewProvisioner(s *fkschema.Schema, opts ...Option) *Provisioner {
	p := &Provisioner{s: s, log: diag.Discard()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Statements returns every statement Provision would execute, in order.
func (p *Provisioner) Statements() ([]string, error) {
	var stmts []string
	if p.s.Name != "" && !p.skipDB {
		db, err := CreateDatabase(p.s.Name, p.recreateDB)
		if err != nil {
			return nil, err
		}
		stmts = append(append(stmts, db...), UseDatabase(p.s.Name))
	}
	tables, err := CreateTables(p.s, p.recreateTables || p.recreateDB)
	if err != nil {
		return nil, err
	}
	return append(stmts, tables...), nil
}

// Provision executes the provisioning statements on ex. The statements
// change session state, so ex must be bound to a single connection: a
// transaction or a driver opened on a *sql.Conn.
func (p *Provisioner) Provision(ctx context.Context, ex dialect.ExecQuerier) error {
	if p.recreateDB && !p.skipDB {
		p.log.Warn("recreate is specified: dropping database", "database", p.s.Name)
	}
	if p.recreateTables {
		p.log.Warn("recreate is specified: dropping tables", "tables", len(p.s.Tables))
	}
	stmts, err := p.Statements()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := ex.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("provision %q: %w", p.s.Name, err)
		}
	}
	p.log.Info("schema provisioned", "database", p.s.Name, "tables", len(p.s.Tables))
	return nil
}
