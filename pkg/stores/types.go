package stores

import (
	"context"
	"database/sql"
	"time"
)

// ValidationRecord is one persisted validation run.
type ValidationRecord struct {
	ID                  string        `json:"id"`
	Valid               bool          `json:"valid"`
	Errors              int           `json:"errors"`
	Warnings            int           `json:"warnings"`
	Partial             bool          `json:"partial"`
	BudgetExceeded      bool          `json:"budget_exceeded"`
	ParametersValidated int           `json:"parameters_validated"`
	ExecutionTime       time.Duration `json:"execution_time"`
	CacheHitRate        float64       `json:"cache_hit_rate"`
	CreatedAt           time.Time     `json:"created_at"`
}

// DiagnosticRecord is one persisted diagnostic, linked to its run.
type DiagnosticRecord struct {
	ID        int64   `json:"id"`
	RunID     string  `json:"run_id"`
	Code      string  `json:"code"`
	Severity  string  `json:"severity"`
	Parameter string  `json:"parameter"`
	Rule      string  `json:"rule"`
	Message   string  `json:"message"`
	Value     *string `json:"value,omitempty"`
}

// ParameterStat aggregates how often a parameter has been flagged across
// all persisted runs. The frequency insight provider reads these.
type ParameterStat struct {
	Parameter  string    `json:"parameter"`
	Violations int64     `json:"violations"`
	LastSeen   time.Time `json:"last_seen"`
}

// Store defines the interface for the validation-history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Validation run operations
	GetRun(ctx context.Context, id string) (*ValidationRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*ValidationRecord, error)
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Diagnostic operations
	ListDiagnostics(ctx context.Context, runID string) ([]*DiagnosticRecord, error)

	// Violation-pattern operations
	ParameterStats(ctx context.Context, limit int) ([]*ParameterStat, error)
	ParameterViolations(ctx context.Context, parameter string) (int64, error)
}
