package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fieldgate.dev/internal/store/pg"
)

var schemaDryRun bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply the PostgreSQL schema",
	Long: `Apply the fieldgate schema to the configured database. Idempotent,
safe to run multiple times.`,
	Example: `  # Apply the schema
  fieldgate schema --dsn postgres://localhost/fieldgate

  # Print the SQL without applying it
  fieldgate schema --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaDryRun {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
			fmt.Print(pg.Schema())
			return nil
		}

		dsn, err := configuredDSN()
		if err != nil {
			return err
		}
		if dsn == "" {
			return fmt.Errorf("a database is required; pass --dsn or set database.url in fieldgate.yaml")
		}

		st, err := pg.Open(dsn)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer func() { _ = st.Close() }()

		if err := st.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}

		fmt.Println("Schema applied.")
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaDryRun, "dry-run", false, "output schema SQL without applying")
}
