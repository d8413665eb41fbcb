package stores

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
	"github.com/paramguard/paramguard/pkg/engine"
)

// setupTestStore creates a file-backed SQLite store in a temp directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "paramguard.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// sampleResult builds an invalid validation result with one error and
// one warning
func sampleResult(id string) *engine.ValidationResult {
	return &engine.ValidationResult{
		ID:    id,
		Valid: false,
		Errors: []diag.Diagnostic{
			diag.Error(diag.CodeConstraintViolation, "qRxLevMin", "range",
				"parameter qRxLevMin: value -120 is below minimum -110").WithValue(-120),
		},
		Warnings: []diag.Diagnostic{
			diag.Warning(diag.CodeCrossParameter, "earfcndl", "earfcndl->earfcnul",
				"earfcnul is expected when earfcndl is configured"),
		},
		ExecutionTime:       12 * time.Millisecond,
		ParametersValidated: 2,
		CacheHitRate:        0.5,
		Timestamp:           time.Now(),
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "paramguard.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected an error for an empty database path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"validation_runs", "diagnostics", "parameter_stats"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestSaveResultRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	result := sampleResult("run-001")
	if err := store.SaveResult(ctx, result); err != nil {
		t.Fatalf("failed to save result: %v", err)
	}

	rec, err := store.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if rec.Valid {
		t.Error("expected the persisted run to be invalid")
	}
	if rec.Errors != 1 || rec.Warnings != 1 {
		t.Errorf("expected 1 error and 1 warning, got %d/%d", rec.Errors, rec.Warnings)
	}
	if rec.ExecutionTime != 12*time.Millisecond {
		t.Errorf("execution time not round-tripped: %v", rec.ExecutionTime)
	}
	if rec.ParametersValidated != 2 {
		t.Errorf("expected 2 parameters validated, got %d", rec.ParametersValidated)
	}

	diags, err := store.ListDiagnostics(ctx, "run-001")
	if err != nil {
		t.Fatalf("failed to list diagnostics: %v", err)
	}
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[0].Parameter != "qRxLevMin" || diags[0].Severity != string(catalog.SeverityError) {
		t.Errorf("unexpected first diagnostic: %+v", diags[0])
	}
	if diags[0].Value == nil || *diags[0].Value != "-120" {
		t.Errorf("offending value not persisted: %+v", diags[0].Value)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.GetRun(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for an unknown run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		r := sampleResult(fmt.Sprintf("run-%03d", i+1))
		r.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := store.SaveResult(ctx, r); err != nil {
			t.Fatalf("failed to save result %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-003" {
		t.Errorf("expected the newest run first, got %s", runs[0].ID)
	}
}

func TestDeleteRunsBeforeCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := sampleResult("run-old")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	if err := store.SaveResult(ctx, old); err != nil {
		t.Fatalf("failed to save old result: %v", err)
	}
	fresh := sampleResult("run-new")
	if err := store.SaveResult(ctx, fresh); err != nil {
		t.Fatalf("failed to save new result: %v", err)
	}

	deleted, err := store.DeleteRunsBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to delete runs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted run, got %d", deleted)
	}

	if _, err := store.GetRun(ctx, "run-old"); err == nil {
		t.Error("expected the old run to be gone")
	}
	diags, err := store.ListDiagnostics(ctx, "run-old")
	if err != nil {
		t.Fatalf("failed to list diagnostics: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("expected the cascade to remove diagnostics, got %d", len(diags))
	}
	if _, err := store.GetRun(ctx, "run-new"); err != nil {
		t.Errorf("the new run must survive: %v", err)
	}
}

func TestParameterStatsAccumulate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := sampleResult(fmt.Sprintf("run-%03d", i+1))
		if err := store.SaveResult(ctx, r); err != nil {
			t.Fatalf("failed to save result %d: %v", i, err)
		}
	}

	count, err := store.ParameterViolations(ctx, "qRxLevMin")
	if err != nil {
		t.Fatalf("failed to get violations: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 recorded violations, got %d", count)
	}

	// Warnings do not count as violations.
	count, err = store.ParameterViolations(ctx, "earfcndl")
	if err != nil {
		t.Fatalf("failed to get violations: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no violations for a warned parameter, got %d", count)
	}

	stats, err := store.ParameterStats(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Parameter != "qRxLevMin" || stats[0].Violations != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestFrequencyInsightProvider(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := sampleResult(fmt.Sprintf("run-%03d", i+1))
		if err := store.SaveResult(ctx, r); err != nil {
			t.Fatalf("failed to save result %d: %v", i, err)
		}
	}

	provider := NewFrequencyInsightProvider(store, 3)
	insights, err := provider.Enrich(ctx, map[string]interface{}{
		"qRxLevMin": -90,
		"earfcndl":  1850,
	}, nil)
	if err != nil {
		t.Fatalf("enrich failed: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("expected one insight, got %v", insights)
	}
	in := insights[0]
	if in.Parameter != "qRxLevMin" || in.Source != "violation-history" {
		t.Errorf("unexpected insight: %+v", in)
	}
	if in.Confidence <= 0 || in.Confidence >= 1 {
		t.Errorf("confidence out of range: %v", in.Confidence)
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_runs (id, valid, created_at)
		VALUES ('tx-run', 1, ?)
	`, time.Now())
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert inside transaction: %v", err)
	}

	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	// Verify the run was not created
	if _, err := store.GetRun(ctx, "tx-run"); err == nil {
		t.Error("expected error when getting rolled back run")
	}
}
