package schema

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(testLogger(), catalog.FallbackCatalog())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestWellShapedConfigPasses(t *testing.T) {
	v := newTestValidator(t)

	diags := v.Validate(map[string]interface{}{
		"managedElementId": "enb-001",
		"qRxLevMin":        -90,
		"cellBarred":       "NOT_BARRED",
	})
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
}

func TestTypeMismatchDetected(t *testing.T) {
	v := newTestValidator(t)

	diags := v.Validate(map[string]interface{}{
		"qRxLevMin": "very low",
	})
	if len(diags) == 0 {
		t.Fatal("expected a schema diagnostic for string where integer expected")
	}
	d := diags[0]
	if d.Code != diag.CodeSchema {
		t.Errorf("code = %s, want %s", d.Code, diag.CodeSchema)
	}
	if d.Parameter != "qRxLevMin" {
		t.Errorf("parameter = %q, want qRxLevMin", d.Parameter)
	}
	if d.Value != "very low" {
		t.Errorf("value = %v, want the offending value", d.Value)
	}
}

func TestUnknownKeysPassShapeCheck(t *testing.T) {
	v := newTestValidator(t)

	// Unknown parameters are the parameter phase's finding, not a
	// shape problem.
	diags := v.Validate(map[string]interface{}{"mysteryKnob": 1})
	if len(diags) != 0 {
		t.Fatalf("expected open schema to pass unknown keys, got %v", diags)
	}
}

func TestArrayFormAccepted(t *testing.T) {
	v := newTestValidator(t)

	// Multi-instance classes carry one value per instance.
	diags := v.Validate(map[string]interface{}{
		"tac": []interface{}{1, 2, 3},
	})
	if len(diags) != 0 {
		t.Fatalf("expected array of integers to pass, got %v", diags)
	}

	diags = v.Validate(map[string]interface{}{
		"tac": []interface{}{1, "two"},
	})
	if len(diags) == 0 {
		t.Fatal("expected mixed-type array to fail the shape check")
	}
}

func TestEmptyConfigIsWellShaped(t *testing.T) {
	v := newTestValidator(t)
	if diags := v.Validate(nil); len(diags) != 0 {
		t.Fatalf("expected empty config to pass, got %v", diags)
	}
}

func TestCoarseTypesFromCatalog(t *testing.T) {
	cat := &catalog.Catalog{
		Parameters: []*catalog.Parameter{
			{ID: "flag", Name: "flag", Type: catalog.TypeBoolean},
			{ID: "ratio", Name: "ratio", Type: catalog.TypeFloat},
			{ID: "blob", Name: "blob", Type: catalog.TypeObject},
		},
	}
	v, err := NewValidator(testLogger(), cat)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	diags := v.Validate(map[string]interface{}{
		"flag":  true,
		"ratio": 0.75,
		"blob":  map[string]interface{}{"nested": "ok"},
	})
	if len(diags) != 0 {
		t.Fatalf("expected coarse types to match, got %v", diags)
	}

	diags = v.Validate(map[string]interface{}{"flag": "yes"})
	if len(diags) == 0 {
		t.Fatal("expected string-for-boolean to fail the shape check")
	}
}
