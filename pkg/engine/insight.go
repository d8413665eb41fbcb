package engine

import (
	"context"

	"github.com/paramguard/paramguard/pkg/diag"
)

// InsightProvider supplies optional advisory annotations for a completed
// diagnostic set. Providers must treat their inputs as read-only; their
// output never affects validity.
type InsightProvider interface {
	// Enrich returns advisory insights for the given configuration and
	// diagnostics. A provider error degrades the run to no insights,
	// never to a failed validation.
	Enrich(ctx context.Context, cfg map[string]interface{}, diags []diag.Diagnostic) ([]Insight, error)
}

// NoopInsightProvider is the default provider: no insights, no errors.
type NoopInsightProvider struct{}

// Enrich implements InsightProvider.
func (NoopInsightProvider) Enrich(context.Context, map[string]interface{}, []diag.Diagnostic) ([]Insight, error) {
	return nil, nil
}

// PatternStore persists completed validation results for offline
// analysis and learning-pattern export. Implementations live in
// pkg/stores; a nil store disables persistence.
type PatternStore interface {
	// SaveResult persists one validation result.
	SaveResult(ctx context.Context, result *ValidationResult) error

	// Close releases the store's resources.
	Close() error
}
