package stores

import (
	"context"
	"fmt"
	"sort"

	"github.com/paramguard/paramguard/pkg/diag"
	"github.com/paramguard/paramguard/pkg/engine"
)

// FrequencyInsightProvider derives advisory insights from persisted
// violation patterns: a configured parameter that has been flagged often
// in past runs gets an insight pointing the operator at its history.
// Insights never affect validity.
type FrequencyInsightProvider struct {
	store     Store
	threshold int64
}

// NewFrequencyInsightProvider creates a provider that reports parameters
// with at least threshold historical violations.
func NewFrequencyInsightProvider(store Store, threshold int64) *FrequencyInsightProvider {
	if threshold < 1 {
		threshold = 1
	}
	return &FrequencyInsightProvider{
		store:     store,
		threshold: threshold,
	}
}

// Enrich implements engine.InsightProvider. Configured parameters are
// checked in sorted order so repeated runs produce identical insights.
func (p *FrequencyInsightProvider) Enrich(ctx context.Context, cfg map[string]interface{}, _ []diag.Diagnostic) ([]engine.Insight, error) {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	var insights []engine.Insight
	for _, name := range names {
		count, err := p.store.ParameterViolations(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read violation history for %s: %w", name, err)
		}
		if count < p.threshold {
			continue
		}
		insights = append(insights, engine.Insight{
			Source:    "violation-history",
			Parameter: name,
			Message: fmt.Sprintf("parameter %s has failed validation %d times in recorded history; double-check its value",
				name, count),
			Confidence: float64(count) / float64(count+5),
		})
	}
	return insights, nil
}
