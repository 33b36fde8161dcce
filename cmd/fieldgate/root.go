package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global state set during PersistentPreRunE.
	cfg *Config

	// Persistent flags.
	cfgFile     string
	fixtureFlag string
	dsnFlag     string
)

// errDenied marks a completed check whose outcome is deny. main exits
// nonzero without printing a second error line.
var errDenied = errors.New("denied")

var rootCmd = &cobra.Command{
	Use:   "fieldgate",
	Short: "Multi-tenant access control resolution",
	Long: `fieldgate - multi-tenant access control resolution

Fieldgate decides whether a user may act on an object, a field or a record.
Object and field checks consult the user's profile; record checks add
ownership, the role hierarchy, organization-wide defaults, sharing rules
and manual shares on top of the profile gate.

Commands resolve against a YAML fixture by default. Pass --dsn (or set
database.url in fieldgate.yaml) to resolve against PostgreSQL instead.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, _, err = loadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover fieldgate.yaml)")
	rootCmd.PersistentFlags().StringVar(&fixtureFlag, "fixture", "", "fixture file to resolve against (default: embedded demo)")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "PostgreSQL DSN; overrides the fixture")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fieldsCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fieldgate version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fieldgate %s (%s)\n", version, commit)
	},
}

// resolveString returns the first non-empty string from the provided
// values. Implements precedence: flag > config > default.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
