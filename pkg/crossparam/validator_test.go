package crossparam

import (
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/syntax"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newValidatorWith(constraints ...*catalog.CrossParameterConstraint) *Validator {
	cat := &catalog.Catalog{CrossParams: make(map[string][]*catalog.CrossParameterConstraint)}
	for _, c := range constraints {
		cat.CrossParams[c.ID] = append(cat.CrossParams[c.ID], c)
	}
	v := NewValidator(testLogger(), time.Second)
	v.CompileCatalog(cat)
	return v
}

func depConstraint(trigger, dependent string) *catalog.CrossParameterConstraint {
	return &catalog.CrossParameterConstraint{
		ID:         trigger + "->" + dependent,
		Type:       catalog.CrossParamDependency,
		Parameters: []string{trigger, dependent},
		Severity:   catalog.SeverityWarning,
	}
}

func TestDependency(t *testing.T) {
	v := newValidatorWith(depConstraint("A", "B"))

	tests := []struct {
		name     string
		cfg      map[string]interface{}
		warnings int
	}{
		{name: "trigger present dependent absent", cfg: map[string]interface{}{"A": 5}, warnings: 1},
		{name: "both present", cfg: map[string]interface{}{"A": 5, "B": 1}, warnings: 0},
		{name: "both absent is not triggered", cfg: map[string]interface{}{"C": 9}, warnings: 0},
		{name: "dependent alone is not triggered", cfg: map[string]interface{}{"B": 1}, warnings: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := v.Validate(tt.cfg)
			if len(diags) != tt.warnings {
				t.Fatalf("expected %d diagnostics, got %+v", tt.warnings, diags)
			}
			if tt.warnings == 1 {
				d := diags[0]
				if d.Severity != catalog.SeverityWarning {
					t.Errorf("dependency default severity must be warning, got %s", d.Severity)
				}
				if d.Parameter != "A" || d.Constraint != "A->B" {
					t.Errorf("diagnostic must reference both parameters: %+v", d)
				}
			}
		})
	}
}

func TestExpressionConstraint(t *testing.T) {
	v := newValidatorWith(&catalog.CrossParameterConstraint{
		ID:         "earfcn-pairing",
		Type:       catalog.CrossParamExpression,
		Parameters: []string{"earfcndl", "earfcnul"},
		Condition:  "earfcndl != None",
		Validation: "earfcnul != None and earfcnul > earfcndl",
		Severity:   catalog.SeverityError,
	})

	tests := []struct {
		name   string
		cfg    map[string]interface{}
		errors int
	}{
		{name: "condition holds validation fails", cfg: map[string]interface{}{"earfcndl": 100}, errors: 1},
		{name: "condition holds validation passes", cfg: map[string]interface{}{"earfcndl": 100, "earfcnul": 18100}, errors: 0},
		{name: "validation fails on ordering", cfg: map[string]interface{}{"earfcndl": 100, "earfcnul": 50}, errors: 1},
		{name: "all referenced parameters absent", cfg: map[string]interface{}{"other": 1}, errors: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := v.Validate(tt.cfg)
			if len(diags) != tt.errors {
				t.Fatalf("expected %d diagnostics, got %+v", tt.errors, diags)
			}
			if tt.errors == 1 && diags[0].Code != diag.CodeConditional {
				t.Errorf("expected conditional code, got %s", diags[0].Code)
			}
		})
	}
}

func TestExpressionUsesConfigDict(t *testing.T) {
	v := newValidatorWith(&catalog.CrossParameterConstraint{
		ID:         "cell-count",
		Type:       catalog.CrossParamExpression,
		Parameters: []string{"cellIds"},
		Validation: `len(config["cellIds"]) <= 3`,
	})

	cfg := map[string]interface{}{"cellIds": []interface{}{1, 2, 3, 4}}
	if diags := v.Validate(cfg); len(diags) != 1 {
		t.Fatalf("expected violation via config dict, got %+v", diags)
	}
}

func TestInvalidExpressionSkippedAtCompile(t *testing.T) {
	v := newValidatorWith(&catalog.CrossParameterConstraint{
		ID:         "broken",
		Type:       catalog.CrossParamExpression,
		Parameters: []string{"a"},
		Validation: "a >((",
	})

	if diags := v.Validate(map[string]interface{}{"a": 1}); len(diags) != 0 {
		t.Fatalf("unparseable rule must be skipped, got %+v", diags)
	}
}

func TestEvaluationErrorIsScopedWarning(t *testing.T) {
	v := newValidatorWith(&catalog.CrossParameterConstraint{
		ID:         "typo",
		Type:       catalog.CrossParamExpression,
		Parameters: []string{"a"},
		Validation: "a > undefinedName",
	})

	diags := v.Validate(map[string]interface{}{"a": 1})
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", diags)
	}
	if diags[0].Severity != catalog.SeverityWarning {
		t.Errorf("evaluation failure must be a warning, got %s", diags[0].Severity)
	}
}

func TestExpressionPanicIsContained(t *testing.T) {
	v := NewValidator(testLogger(), time.Second)
	c := &catalog.CrossParameterConstraint{ID: "malformed", Parameters: []string{"a"}}

	// A hand-built node with nil operands panics inside the
	// interpreter; the evaluation goroutine must surface that as an
	// error instead of crashing the process.
	_, err := v.evalBool(&syntax.BinaryExpr{Op: syntax.PLUS}, c, map[string]interface{}{"a": 1})
	if err == nil {
		t.Fatal("expected an error from a malformed expression")
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected a contained panic error, got %v", err)
	}
}

func TestOrderIndependence(t *testing.T) {
	constraints := []*catalog.CrossParameterConstraint{
		depConstraint("A", "B"),
		depConstraint("C", "D"),
		{
			ID:         "ab-sum",
			Type:       catalog.CrossParamExpression,
			Parameters: []string{"A", "C"},
			Validation: "A + C < 100",
		},
	}
	cfg := map[string]interface{}{"A": 60, "C": 50}

	var reference []string
	for trial := 0; trial < 5; trial++ {
		shuffled := append([]*catalog.CrossParameterConstraint(nil), constraints...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		v := newValidatorWith(shuffled...)
		keys := diagKeys(v.Validate(cfg))
		if trial == 0 {
			reference = keys
			if len(reference) != 3 {
				t.Fatalf("expected 3 diagnostics, got %v", reference)
			}
			continue
		}
		if !equalStrings(reference, keys) {
			t.Fatalf("diagnostics changed with constraint order: %v vs %v", reference, keys)
		}
	}
}

func TestTypeFilter(t *testing.T) {
	v := newValidatorWith(
		depConstraint("A", "B"),
		&catalog.CrossParameterConstraint{
			ID:         "a-cap",
			Type:       catalog.CrossParamExpression,
			Parameters: []string{"A"},
			Validation: "A < 10",
		},
	)
	cfg := map[string]interface{}{"A": 50}

	deps := v.Validate(cfg, catalog.CrossParamDependency)
	if len(deps) != 1 || deps[0].Code != diag.CodeCrossParameter {
		t.Fatalf("dependency filter wrong: %+v", deps)
	}
	exprs := v.Validate(cfg, catalog.CrossParamExpression)
	if len(exprs) != 1 || exprs[0].Code != diag.CodeConditional {
		t.Fatalf("expression filter wrong: %+v", exprs)
	}
}

func diagKeys(diags []diag.Diagnostic) []string {
	keys := make([]string, len(diags))
	for i, d := range diags {
		keys[i] = d.Key()
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
