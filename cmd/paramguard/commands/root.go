package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	catalogPath string
	optionsPath string
	storePath   string
	logLevel    string
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "paramguard",
		Short: "ParamGuard - Configuration Parameter Validation Engine",
		Long: `ParamGuard validates network configuration snapshots against a
catalog of typed parameters with constraints, hierarchy rules, and
cross-parameter dependencies.

Features:
  - Catalog-driven constraints (range, enum, pattern, length, required)
  - Cross-parameter dependency and expression rules via Starlark
  - MO-class hierarchy and relationship checks
  - Structural schema conformance via CUE
  - Constraint result caching with a soft latency budget
  - Validation history and violation patterns in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel == "" {
				return
			}
			if lvl, err := zerolog.ParseLevel(logLevel); err == nil {
				zerolog.SetGlobalLevel(lvl)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "", "parameter catalog path (CSV or YAML); empty uses the built-in catalog")
	rootCmd.PersistentFlags().StringVar(&optionsPath, "options", "", "engine options file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "SQLite validation-history database path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
