package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/paramguard/paramguard/pkg/constraint"
)

// LatencyPolicy controls what happens when a validation run exceeds the
// latency budget.
type LatencyPolicy string

const (
	// LatencyAdvisory records the overrun in metrics and events but lets
	// the run finish. Diagnostics stay complete.
	LatencyAdvisory LatencyPolicy = "advisory"

	// LatencyCancel stops before starting the next phase once the budget
	// is spent and returns the diagnostics collected so far, marked
	// partial.
	LatencyCancel LatencyPolicy = "cancel"
)

// Options configures the validation engine.
type Options struct {
	// CatalogSource is the path the catalog is loaded from. Empty means
	// the built-in fallback catalog.
	CatalogSource string `yaml:"catalog_source"`

	// WatchCatalog reloads the catalog when the source file changes.
	WatchCatalog bool `yaml:"watch_catalog"`

	// ValidationBudget is the soft latency budget per validation run.
	ValidationBudget time.Duration `yaml:"validation_budget" validate:"gt=0"`

	// LatencyPolicy selects advisory or cancel behavior on budget overrun.
	LatencyPolicy LatencyPolicy `yaml:"latency_policy" validate:"oneof=advisory cancel"`

	// Workers is the parameter-phase worker pool size.
	Workers int `yaml:"workers" validate:"gte=1,lte=256"`

	// HistoryLimit bounds the retained validation results.
	HistoryLimit int `yaml:"history_limit" validate:"gte=1"`

	// CrossParamTimeout bounds one cross-parameter expression evaluation.
	CrossParamTimeout time.Duration `yaml:"cross_param_timeout" validate:"gt=0"`

	// Constraint configures the constraint processor, including its
	// value cache and compiled fast path.
	Constraint constraint.Options `yaml:"constraint"`
}

// DefaultOptions returns engine options tuned for a soft 300ms latency
// budget per validation run.
func DefaultOptions() Options {
	return Options{
		CatalogSource:     "",
		WatchCatalog:      false,
		ValidationBudget:  300 * time.Millisecond,
		LatencyPolicy:     LatencyAdvisory,
		Workers:           8,
		HistoryLimit:      100,
		CrossParamTimeout: time.Second,
		Constraint:        constraint.DefaultOptions(),
	}
}

// LoadOptions reads engine options from a YAML file, starting from the
// defaults so omitted fields keep sane values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read options file: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse options file: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks the options against their constraints.
func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return NewPermanentError("invalid engine options", err).WithCode(ErrCodeOptions)
	}
	return nil
}
