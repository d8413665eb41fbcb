package engine

import (
	"time"

	"github.com/paramguard/paramguard/pkg/diag"
)

// State is the engine lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateShuttingDown  State = "shutting_down"
	StateShutDown      State = "shut_down"
)

// ValidationLevel is a named preset controlling which optional phases
// execute.
type ValidationLevel string

const (
	// LevelStandard runs all validation phases without advisory
	// enrichment.
	LevelStandard ValidationLevel = "standard"

	// LevelComprehensive additionally asks the insight provider for
	// advisory annotations.
	LevelComprehensive ValidationLevel = "comprehensive"
)

// ValidationContext carries per-run inputs and identity.
type ValidationContext struct {
	// ID is the unique validation run identifier.
	ID string `json:"id"`

	// Timestamp is when the run was requested.
	Timestamp time.Time `json:"timestamp"`

	// Configuration is the snapshot being checked. The engine treats it
	// as read-only.
	Configuration map[string]interface{} `json:"configuration"`

	// Level selects the validation preset.
	Level ValidationLevel `json:"level"`

	// User is caller-supplied context carried through events and
	// insights.
	User map[string]interface{} `json:"user,omitempty"`
}

// Insight is an advisory annotation from the optional insight provider.
// Insights never affect validity.
type Insight struct {
	Source     string  `json:"source"`
	Parameter  string  `json:"parameter,omitempty"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ValidationResult is the aggregated outcome of one validation run.
// Invariant: Valid == (len(Errors) == 0); warnings never affect
// validity.
type ValidationResult struct {
	// ID is the validation run identifier.
	ID string `json:"id"`

	// Valid is true when no error-severity diagnostics were produced.
	Valid bool `json:"valid"`

	// Errors are the error-severity diagnostics.
	Errors []diag.Diagnostic `json:"errors"`

	// Warnings are the warning-severity diagnostics.
	Warnings []diag.Diagnostic `json:"warnings"`

	// ExecutionTime is how long the run took.
	ExecutionTime time.Duration `json:"execution_time"`

	// ParametersValidated counts the parameter values checked.
	ParametersValidated int `json:"parameters_validated"`

	// CacheHitRate is the constraint-cache hit rate during this run.
	CacheHitRate float64 `json:"cache_hit_rate"`

	// BudgetExceeded records a latency budget overrun.
	BudgetExceeded bool `json:"budget_exceeded,omitempty"`

	// Partial is true when the cancel latency policy stopped the run
	// before all phases completed.
	Partial bool `json:"partial,omitempty"`

	// Insights are optional advisory annotations.
	Insights []Insight `json:"insights,omitempty"`

	// Timestamp is when the run completed.
	Timestamp time.Time `json:"timestamp"`
}

// Metrics is a snapshot of engine counters.
type Metrics struct {
	State                State         `json:"state"`
	Validations          uint64        `json:"validations"`
	Invalid              uint64        `json:"invalid"`
	BudgetExceeded       uint64        `json:"budget_exceeded"`
	ParametersValidated  uint64        `json:"parameters_validated"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	CatalogParameters    int           `json:"catalog_parameters"`
	CatalogSource        string        `json:"catalog_source"`
	CatalogReloads       uint64        `json:"catalog_reloads"`
	HistorySize          int           `json:"history_size"`
}

// Phase names in their fixed execution order.
const (
	PhaseParameter      = "parameter"
	PhaseCrossParameter = "cross_parameter"
	PhaseHierarchy      = "hierarchy"
	PhaseRelationship   = "relationship"
	PhaseConditional    = "conditional"
	PhaseSchema         = "schema"
	PhaseEnrichment     = "enrichment"
)
