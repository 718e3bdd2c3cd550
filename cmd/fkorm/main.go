// Command fkorm checks schema descriptions, prints the DDL derived from
// them and provisions databases.
//
//	fkorm check --schema schema.yaml
//	fkorm ddl --schema schema.yaml --database shop
//	fkorm provision --config fkorm.yaml
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/syssam/fkorm"
	"github.com/syssam/fkorm/compiler"
	"github.com/syssam/fkorm/diag"
	sqlschema "github.com/syssam/fkorm/dialect/sql/schema"
	"github.com/syssam/fkorm/schema"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "fkorm",
		Usage:  "schema tooling for fkorm databases",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file"},
			&cli.StringFlag{Name: "schema", Aliases: []string{"s"}, Usage: "schema description, overrides the configured one"},
			&cli.IntFlag{Name: "log-level", Value: diag.LevelWarn, Usage: "diagnostics verbosity, 0 (silent) to 4 (trace)"},
		},
		Commands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "compile and validate a schema description",
				Action: check,
			},
			{
				Name:  "ddl",
				Usage: "print the statements creating the database and its tables",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "database", Usage: "database name"},
					&cli.BoolFlag{Name: "recreate-database", Usage: "drop the database first"},
					&cli.BoolFlag{Name: "recreate-tables", Usage: "drop the tables first"},
				},
				Action: ddl,
			},
			{
				Name:  "provision",
				Usage: "create the configured database and load its default data",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recreate-database", Usage: "drop the database first"},
					&cli.BoolFlag{Name: "recreate-tables", Usage: "drop the tables first"},
				},
				Action: provision,
			},
		},
	}
}

// config returns the configuration named by the flags, or the defaults.
func config(cmd *cli.Command) (*fkorm.Config, error) {
	cfg := fkorm.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = fkorm.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if path := cmd.String("schema"); path != "" {
		cfg.Schema = path
	}
	if cmd.IsSet("log-level") || cmd.String("config") == "" {
		cfg.LogLevel = int(cmd.Int("log-level"))
	}
	return cfg, nil
}

func compile(cmd *cli.Command, database string) (*schema.Schema, *diag.Logger, error) {
	cfg, err := config(cmd)
	if err != nil {
		return nil, nil, err
	}
	desc, _, err := cfg.Sources()
	if err != nil {
		return nil, nil, err
	}
	log := diag.New(nil, cfg.LogLevel)
	opts := []compiler.Option{compiler.WithLogger(log)}
	if database = cmp.Or(database, cfg.Database); database != "" {
		opts = append(opts, compiler.WithDatabase(database))
	}
	s, err := compiler.Compile(desc, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, log, nil
}

func check(_ context.Context, cmd *cli.Command) error {
	s, _, err := compile(cmd, "")
	if err != nil {
		return err
	}
	result := sqlschema.ValidateSchema(s)
	fmt.Fprintf(cmd.Root().Writer, "%d tables\n%s\n", len(s.Tables), result)
	if result.HasErrors() {
		return errors.New("schema has validation errors")
	}
	return nil
}

func ddl(_ context.Context, cmd *cli.Command) error {
	s, log, err := compile(cmd, cmd.String("database"))
	if err != nil {
		return err
	}
	stmts, err := sqlschema.NewProvisioner(s,
		sqlschema.WithRecreateDatabase(cmd.Bool("recreate-database")),
		sqlschema.WithRecreateTables(cmd.Bool("recreate-tables")),
		sqlschema.WithLogger(log),
	).Statements()
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		fmt.Fprintf(cmd.Root().Writer, "%s;\n", stmt)
	}
	return nil
}

func provision(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("recreate-database") {
		cfg.RecreateDatabase = cmd.Bool("recreate-database")
	}
	if cmd.IsSet("recreate-tables") {
		cfg.RecreateTables = cmd.Bool("recreate-tables")
	}
	cfg.SkipChecks = false
	desc, data, err := cfg.Sources()
	if err != nil {
		return err
	}
	client, err := fkorm.Open(ctx, cfg, desc, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "provisioned %q (%d tables)\n", client.Schema().Name, len(client.Schema().Tables))
	return client.Close()
}
