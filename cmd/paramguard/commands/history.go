package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Validation history stored in SQLite",
		Long: `Query the validation history database.

Every persisted run records its verdict, diagnostic counts, timing, and
cache effectiveness; diagnostics are stored alongside. Violation tallies
per parameter accumulate across runs and feed the comprehensive-level
insights.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted validation runs, newest first",
		Example: `  # List the last 20 runs
  paramguard history list --store history.db

  # Page through older runs
  paramguard history list --store history.db --limit 50 --offset 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if storePath == "" {
				return fmt.Errorf("--store is required")
			}
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			for _, r := range runs {
				verdict := "valid"
				if !r.Valid {
					verdict = "invalid"
				}
				fmt.Printf("%s  %s  %-7s  %d errors, %d warnings, %d parameters in %s\n",
					r.CreatedAt.Format(time.RFC3339), r.ID, verdict,
					r.Errors, r.Warnings, r.ParametersValidated,
					r.ExecutionTime.Round(time.Microsecond))
			}
			fmt.Printf("%d run(s)\n", len(runs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its diagnostics",
		Args:  cobra.ExactArgs(1),
		Example: `  # Show a run's diagnostics
  paramguard history show --store history.db 2f6b7f0e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if storePath == "" {
				return fmt.Errorf("--store is required")
			}
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			diags, err := store.ListDiagnostics(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				out, err := json.MarshalIndent(map[string]interface{}{
					"run":         run,
					"diagnostics": diags,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			verdict := "valid"
			if !run.Valid {
				verdict = "invalid"
			}
			fmt.Printf("run %s: %s at %s, %d parameters in %s (cache hit rate %.2f)\n",
				run.ID, verdict, run.CreatedAt.Format(time.RFC3339),
				run.ParametersValidated, run.ExecutionTime.Round(time.Microsecond),
				run.CacheHitRate)
			for _, d := range diags {
				value := ""
				if d.Value != nil {
					value = fmt.Sprintf(" (value %s)", *d.Value)
				}
				fmt.Printf("  [%s] %s: %s%s (%s)\n", d.Severity, d.Parameter, d.Message, value, d.Code)
			}
			return nil
		},
	}
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var keep time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the retention window",
		Long: `Delete persisted runs (and their diagnostics) older than the
retention window. Per-parameter violation tallies are kept; they summarize
all history ever recorded.`,
		Example: `  # Keep the last 30 days
  paramguard history prune --store history.db --keep 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if storePath == "" {
				return fmt.Errorf("--store is required")
			}
			store, err := openStore(cmd.Context(), storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.DeleteRunsBefore(cmd.Context(), time.Now().Add(-keep))
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d run(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().DurationVar(&keep, "keep", 30*24*time.Hour, "retention window")

	return cmd
}
