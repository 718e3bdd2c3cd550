package fkorm

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/syssam/fkorm/compiler"
	"github.com/syssam/fkorm/compiler/load"
	"github.com/syssam/fkorm/diag"
	"github.com/syssam/fkorm/dialect"
	"github.com/syssam/fkorm/dialect/sql"
	sqlschema "github.com/syssam/fkorm/dialect/sql/schema"
)

// Config configures Open.
type Config struct {
	// Database is the database name. It overrides the name in DSN.
	Database string `yaml:"database"`
	// DSN is a go-sql-driver/mysql data source name,
	// e.g. "user:pass@tcp(localhost:3306)/".
	DSN string `yaml:"dsn"`
	// Schema and Data are paths to the schema description and the
	// optional default data. LoadConfig makes them relative to the
	// configuration file.
	Schema string `yaml:"schema"`
	Data   string `yaml:"data"`
	// LogLevel is the diagnostics verbosity, 0 (silent) to 4 (trace).
	LogLevel int `yaml:"log_level"`
	// RecreateDatabase drops the database before creating it.
	RecreateDatabase bool `yaml:"recreate_database"`
	// RecreateTables drops every table before creating it.
	RecreateTables bool `yaml:"recreate_tables"`
	// SkipChecks opens the connection pool without provisioning.
	SkipChecks bool `yaml:"skip_checks"`
	// MaxOpenConns bounds the connection pool. Zero means unbounded.
	MaxOpenConns int `yaml:"max_open_conns"`
	// LookupDepth bounds reference hydration. Zero keeps the default.
	LookupDepth int `yaml:"lookup_depth"`
}

// DefaultConfig returns the configuration used for missing settings.
func DefaultConfig() *Config {
	return &Config{
		DSN:      "root@tcp(localhost:3306)/",
		LogLevel: diag.LevelWarn,
	}
}

// ParseConfig decodes a YAML configuration over the defaults.
func ParseConfig(buf []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("fkorm: parsing config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fkorm: reading config: %w", err)
	}
	cfg, err := ParseConfig(buf)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Schema, &cfg.Data} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return cfg, nil
}

// MySQL returns the driver configuration. Affected-row counts report
// matched rows, so saving an unchanged row succeeds.
func (c *Config) MySQL() (*mysql.Config, error) {
	mc, err := mysql.ParseDSN(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("fkorm: parsing dsn: %w", err)
	}
	if c.Database != "" {
		mc.DBName = c.Database
	}
	if mc.DBName == "" {
		return nil, errors.New("fkorm: database name is required")
	}
	mc.ClientFoundRows = true
	mc.ParseTime = true
	return mc, nil
}

// Sources reads the schema description and the default data named by
// the configuration. Data is empty when no data file is configured.
func (c *Config) Sources() (*load.Schema, load.Dataset, error) {
	if c.Schema == "" {
		return nil, nil, errors.New("fkorm: no schema file configured")
	}
	desc, err := load.ReadSchema(c.Schema)
	if err != nil {
		return nil, nil, err
	}
	if c.Data == "" {
		return desc, nil, nil
	}
	data, err := load.ReadData(c.Data)
	if err != nil {
		return nil, nil, err
	}
	return desc, data, nil
}

// Open compiles desc and returns a client connected to the configured
// database. Unless SkipChecks is set, the database and its tables are
// created first, and data is saved when they were recreated.
func Open(ctx context.Context, cfg *Config, desc *load.Schema, data load.Dataset, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("fkorm: nil config")
	}
	log := diag.New(nil, cfg.LogLevel)
	mc, err := cfg.MySQL()
	if err != nil {
		return nil, log.Fail(err)
	}
	s, err := compiler.Compile(desc, compiler.WithLogger(log), compiler.WithDatabase(mc.DBName))
	if err != nil {
		return nil, err
	}
	if !cfg.SkipChecks {
		p := sqlschema.NewProvisioner(s,
			sqlschema.WithRecreateDatabase(cfg.RecreateDatabase),
			sqlschema.WithRecreateTables(cfg.RecreateTables),
			sqlschema.WithLogger(log),
		)
		if err := bootstrap(ctx, mc, p); err != nil {
			return nil, log.Fail(err)
		}
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, log.Fail(err)
	}
	db := stdsql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	copts := []Option{WithLogger(log)}
	if cfg.LookupDepth > 0 {
		copts = append(copts, WithLookupDepth(cfg.LookupDepth))
	}
	client := New(s, sql.OpenDB(dialect.MySQL, db), append(copts, opts...)...)
	if !cfg.SkipChecks && (cfg.RecreateDatabase || cfg.RecreateTables) && len(data) > 0 {
		if err := client.SaveMultipleTables(ctx, Tables(data)); err != nil {
			return nil, log.Fail(errors.Join(fmt.Errorf("fkorm: saving default data: %w", err), client.Close()))
		}
	}
	log.Info("database ready", "database", s.Name, "tables", len(s.Tables))
	return client, nil
}

// bootstrap provisions the database through a connection that does not
// select it, since it may not exist yet.
func bootstrap(ctx context.Context, mc *mysql.Config, p *sqlschema.Provisioner) (err error) {
	boot := mc.Clone()
	boot.DBName = ""
	connector, err := mysql.NewConnector(boot)
	if err != nil {
		return err
	}
	db := stdsql.OpenDB(connector)
	defer func() {
		err = errors.Join(err, db.Close())
	}()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("fkorm: connecting: %w", err)
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()
	return p.Provision(ctx, sql.OpenConn(dialect.MySQL, conn))
}

// Provision creates the database and the tables of the schema on a
// connection of the client's pool.
func (c *Client) Provision(ctx context.Context, recreateDatabase, recreateTables bool) (err error) {
	p := sqlschema.NewProvisioner(c.schema,
		sqlschema.WithRecreateDatabase(recreateDatabase),
		sqlschema.WithRecreateTables(recreateTables),
		sqlschema.WithLogger(c.log),
	)
	drv := c.driver
	if d, ok := drv.(*sql.DebugDriver); ok {
		drv = d.Driver
	}
	d, ok := drv.(*sql.Driver)
	if !ok || d.DB() == nil {
		return p.Provision(ctx, c.driver)
	}
	conn, err := d.DB().Conn(ctx)
	if err != nil {
		return fmt.Errorf("fkorm: connecting: %w", err)
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()
	return p.Provision(ctx, sql.OpenConn(d.Dialect(), conn))
}
