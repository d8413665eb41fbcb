package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
	"github.com/paramguard/paramguard/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists validation runs, their diagnostics, and the
// per-parameter violation tallies the insight provider reads. It
// implements both Store and engine.PatternStore.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveResult persists a completed validation run together with its
// diagnostics and updates the per-parameter violation tallies. The whole
// write is one transaction: a run is never visible without its
// diagnostics. Implements engine.PatternStore.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *engine.ValidationResult) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_runs (
			id, valid, errors, warnings, partial, budget_exceeded,
			parameters_validated, execution_time_ns, cache_hit_rate, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID,
		result.Valid,
		len(result.Errors),
		len(result.Warnings),
		result.Partial,
		result.BudgetExceeded,
		result.ParametersValidated,
		int64(result.ExecutionTime),
		result.CacheHitRate,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert validation run: %w", err)
	}

	insertDiag := `
		INSERT INTO diagnostics (run_id, code, severity, parameter, rule, message, value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	bumpStat := `
		INSERT INTO parameter_stats (parameter, violations, last_seen)
		VALUES (?, 1, ?)
		ON CONFLICT(parameter) DO UPDATE SET
			violations = violations + 1,
			last_seen = excluded.last_seen
	`

	persist := func(diags []diag.Diagnostic) error {
		for _, d := range diags {
			var value *string
			if d.Value != nil {
				v := fmt.Sprintf("%v", d.Value)
				value = &v
			}
			if _, err := tx.ExecContext(ctx, insertDiag,
				result.ID, string(d.Code), string(d.Severity), d.Parameter, d.Constraint, d.Message, value,
			); err != nil {
				return fmt.Errorf("failed to insert diagnostic: %w", err)
			}
			if d.Severity == catalog.SeverityError && d.Parameter != "" {
				if _, err := tx.ExecContext(ctx, bumpStat, d.Parameter, createdAt); err != nil {
					return fmt.Errorf("failed to update parameter stats: %w", err)
				}
			}
		}
		return nil
	}
	if err := persist(result.Errors); err != nil {
		return err
	}
	if err := persist(result.Warnings); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit validation run: %w", err)
	}
	return nil
}

// GetRun retrieves a validation run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*ValidationRecord, error) {
	query := `
		SELECT id, valid, errors, warnings, partial, budget_exceeded,
			   parameters_validated, execution_time_ns, cache_hit_rate, created_at
		FROM validation_runs
		WHERE id = ?
	`

	rec := &ValidationRecord{}
	var execNs int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Valid,
		&rec.Errors,
		&rec.Warnings,
		&rec.Partial,
		&rec.BudgetExceeded,
		&rec.ParametersValidated,
		&execNs,
		&rec.CacheHitRate,
		&rec.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("validation run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get validation run: %w", err)
	}

	rec.ExecutionTime = time.Duration(execNs)
	return rec, nil
}

// ListRuns lists validation runs with pagination, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*ValidationRecord, error) {
	query := `
		SELECT id, valid, errors, warnings, partial, budget_exceeded,
			   parameters_validated, execution_time_ns, cache_hit_rate, created_at
		FROM validation_runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list validation runs: %w", err)
	}
	defer rows.Close()

	records := []*ValidationRecord{}
	for rows.Next() {
		rec := &ValidationRecord{}
		var execNs int64
		err := rows.Scan(
			&rec.ID,
			&rec.Valid,
			&rec.Errors,
			&rec.Warnings,
			&rec.Partial,
			&rec.BudgetExceeded,
			&rec.ParametersValidated,
			&execNs,
			&rec.CacheHitRate,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation run: %w", err)
		}
		rec.ExecutionTime = time.Duration(execNs)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validation runs: %w", err)
	}

	return records, nil
}

// DeleteRunsBefore removes validation runs older than the cutoff and,
// via the cascade, their diagnostics. Parameter tallies are kept.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM validation_runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete validation runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// ListDiagnostics lists all diagnostics recorded for a run
func (s *SQLiteStore) ListDiagnostics(ctx context.Context, runID string) ([]*DiagnosticRecord, error) {
	query := `
		SELECT id, run_id, code, severity, parameter, rule, message, value
		FROM diagnostics
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnostics: %w", err)
	}
	defer rows.Close()

	records := []*DiagnosticRecord{}
	for rows.Next() {
		rec := &DiagnosticRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Code,
			&rec.Severity,
			&rec.Parameter,
			&rec.Rule,
			&rec.Message,
			&rec.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostics: %w", err)
	}

	return records, nil
}

// ParameterStats returns the most frequently violated parameters
func (s *SQLiteStore) ParameterStats(ctx context.Context, limit int) ([]*ParameterStat, error) {
	query := `
		SELECT parameter, violations, last_seen
		FROM parameter_stats
		ORDER BY violations DESC, parameter ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list parameter stats: %w", err)
	}
	defer rows.Close()

	stats := []*ParameterStat{}
	for rows.Next() {
		stat := &ParameterStat{}
		if err := rows.Scan(&stat.Parameter, &stat.Violations, &stat.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan parameter stat: %w", err)
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parameter stats: %w", err)
	}

	return stats, nil
}

// ParameterViolations returns the violation tally for one parameter,
// zero when it has never been flagged
func (s *SQLiteStore) ParameterViolations(ctx context.Context, parameter string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT violations FROM parameter_stats WHERE parameter = ?`, parameter).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get parameter violations: %w", err)
	}
	return count, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
