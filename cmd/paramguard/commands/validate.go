package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paramguard/paramguard/pkg/engine"
	"github.com/paramguard/paramguard/pkg/stores"
	"github.com/paramguard/paramguard/pkg/telemetry"
)

// errInvalidConfiguration makes an invalid configuration exit non-zero
// without being a command failure in the usual sense.
var errInvalidConfiguration = fmt.Errorf("configuration is invalid")

func newValidateCommand() *cobra.Command {
	var (
		level         string
		budget        time.Duration
		latencyPolicy string
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "validate <configuration>",
		Short: "Validate a configuration snapshot against the catalog",
		Long: `Validate a configuration snapshot (YAML or JSON mapping of
parameter names to values) against the parameter catalog.

All validation phases run and every violation is reported:
  - per-parameter constraints (type, range, enum, pattern, length, required)
  - cross-parameter dependencies and conditional expression rules
  - MO-class cardinality and relationship checks
  - structural schema conformance

The command exits non-zero when the configuration has error-severity
violations; warnings alone leave the exit code at zero.`,
		Example: `  # Validate against the built-in catalog
  paramguard validate cell-config.yaml

  # Validate against a catalog export
  paramguard validate -c catalog.csv cell-config.yaml

  # Comprehensive run with history-backed insights
  paramguard validate --store history.db --level comprehensive cell-config.yaml

  # Machine-readable output
  paramguard validate --json cell-config.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfiguration(args[0])
			if err != nil {
				return err
			}

			opts, err := engineOptions()
			if err != nil {
				return err
			}
			if budget > 0 {
				opts.ValidationBudget = budget
			}
			if latencyPolicy != "" {
				opts.LatencyPolicy = engine.LatencyPolicy(latencyPolicy)
			}

			eng, err := engine.New(log.Logger, opts)
			if err != nil {
				return err
			}

			if metricsListen != "" {
				telCfg := telemetry.DefaultConfig()
				telCfg.Metrics.Enabled = true
				telCfg.Metrics.ListenAddress = metricsListen
				tel, err := telemetry.NewTelemetry(telCfg)
				if err != nil {
					return fmt.Errorf("failed to set up telemetry: %w", err)
				}
				if err := tel.StartMetricsServer(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				defer tel.Shutdown(ctx)
				eng.SetTelemetry(tel)
			}

			if storePath != "" {
				store, err := openStore(ctx, storePath)
				if err != nil {
					return err
				}
				eng.SetPatternStore(store)
				eng.SetInsightProvider(stores.NewFrequencyInsightProvider(store, 3))
			}

			if err := eng.Initialize(ctx); err != nil {
				return err
			}
			defer eng.Shutdown(ctx)

			result, err := eng.ValidateWithContext(ctx, engine.ValidationContext{
				Configuration: cfg,
				Level:         engine.ValidationLevel(level),
			})
			if err != nil {
				return err
			}

			if err := printResult(result); err != nil {
				return err
			}
			if !result.Valid {
				return errInvalidConfiguration
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", string(engine.LevelStandard), "validation level (standard, comprehensive)")
	cmd.Flags().DurationVar(&budget, "budget", 0, "latency budget override (e.g. 300ms)")
	cmd.Flags().StringVar(&latencyPolicy, "latency-policy", "", "budget overrun policy (advisory, cancel)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")

	return cmd
}

// loadConfiguration reads a YAML or JSON mapping of parameter names to
// values. YAML is a superset of JSON, so one decoder covers both.
func loadConfiguration(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// engineOptions builds engine options from the --options file (when
// given) and the --catalog flag.
func engineOptions() (engine.Options, error) {
	opts := engine.DefaultOptions()
	if optionsPath != "" {
		loaded, err := engine.LoadOptions(optionsPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	if catalogPath != "" {
		opts.CatalogSource = catalogPath
	}
	return opts, nil
}

// openStore opens and migrates the SQLite validation-history store.
func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// printResult renders the validation result as JSON or human-readable
// text.
func printResult(result *engine.ValidationResult) error {
	if jsonOutput {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	for _, d := range result.Errors {
		fmt.Println(d.String())
	}
	for _, d := range result.Warnings {
		fmt.Println(d.String())
	}
	for _, in := range result.Insights {
		fmt.Printf("[insight] %s: %s (confidence %.2f)\n", in.Parameter, in.Message, in.Confidence)
	}

	verdict := "valid"
	if !result.Valid {
		verdict = "invalid"
	}
	suffix := ""
	if result.Partial {
		suffix = " [partial: latency budget exceeded]"
	} else if result.BudgetExceeded {
		suffix = " [latency budget exceeded]"
	}
	fmt.Printf("configuration %s: %d errors, %d warnings, %d parameters in %s%s\n",
		verdict, len(result.Errors), len(result.Warnings),
		result.ParametersValidated, result.ExecutionTime.Round(time.Microsecond), suffix)
	return nil
}
