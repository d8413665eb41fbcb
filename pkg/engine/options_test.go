package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultOptionsAreValid(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("defaults must validate, got %v", err)
	}
}

func TestOptionsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		valid  bool
	}{
		{"defaults", func(*Options) {}, true},
		{"zero workers", func(o *Options) { o.Workers = 0 }, false},
		{"too many workers", func(o *Options) { o.Workers = 512 }, false},
		{"zero budget", func(o *Options) { o.ValidationBudget = 0 }, false},
		{"unknown policy", func(o *Options) { o.LatencyPolicy = "best_effort" }, false},
		{"cancel policy", func(o *Options) { o.LatencyPolicy = LatencyCancel }, true},
		{"zero history", func(o *Options) { o.HistoryLimit = 0 }, false},
		{"zero crossparam timeout", func(o *Options) { o.CrossParamTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.valid && err != nil {
				t.Fatalf("expected valid options, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadOptionsOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	doc := `
workers: 4
history_limit: 10
latency_policy: cancel
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write options fixture: %v", err)
	}

	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Workers != 4 || opts.HistoryLimit != 10 || opts.LatencyPolicy != LatencyCancel {
		t.Fatalf("overrides not applied: %+v", opts)
	}
	// Omitted fields keep their defaults.
	if opts.ValidationBudget != 300*time.Millisecond {
		t.Fatalf("expected the default budget, got %v", opts.ValidationBudget)
	}
}

func TestLoadOptionsMissingFile(t *testing.T) {
	if _, err := LoadOptions("/nonexistent/engine.yaml"); err == nil {
		t.Fatal("expected an error for a missing options file")
	}
}

func TestLoadOptionsRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("workers: 0\n"), 0o644); err != nil {
		t.Fatalf("failed to write options fixture: %v", err)
	}
	if _, err := LoadOptions(path); err == nil {
		t.Fatal("expected a validation error")
	}
}
