package constraint

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func newTestProcessor(opts Options, customs map[string]CustomValidator) *Processor {
	return NewProcessor(testLogger(), opts, customs)
}

func rangeParam(min, max float64, required bool) *catalog.Parameter {
	constraints := []catalog.Constraint{}
	if required {
		constraints = append(constraints, catalog.Constraint{Kind: catalog.KindRequired, Severity: catalog.SeverityError})
	}
	constraints = append(constraints, catalog.Constraint{Kind: catalog.KindRange, Severity: catalog.SeverityError, Min: min, Max: max})
	return &catalog.Parameter{ID: "qRxLevMin", Name: "qRxLevMin", Type: catalog.TypeInteger, Constraints: constraints}
}

func TestRangeBoundaries(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := rangeParam(-110, -70, false)

	tests := []struct {
		name       string
		value      interface{}
		violations int
		mentions   string
	}{
		{name: "min is valid", value: -110, violations: 0},
		{name: "max is valid", value: -70, violations: 0},
		{name: "below min", value: -111, violations: 1, mentions: "-110"},
		{name: "above max", value: -69, violations: 1, mentions: "-70"},
		{name: "interior", value: -90, violations: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := p.ValidateParameter(param, tt.value)
			if len(diags) != tt.violations {
				t.Fatalf("expected %d violations, got %+v", tt.violations, diags)
			}
			if tt.violations == 1 {
				if diags[0].Constraint != string(catalog.KindRange) {
					t.Errorf("expected range violation, got %s", diags[0].Constraint)
				}
				if tt.mentions != "" && !containsSubstring(diags[0].Message, tt.mentions) {
					t.Errorf("expected boundary %s referenced in %q", tt.mentions, diags[0].Message)
				}
			}
		})
	}
}

func TestRangeTypeMismatch(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := rangeParam(0, 10, false)

	diags := p.ValidateParameter(param, "not-a-number")
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", diags)
	}
	if diags[0].Code != diag.CodeTypeMismatch {
		t.Errorf("expected type mismatch, got %s", diags[0].Code)
	}
}

func TestRangeAcceptsNumericStrings(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := rangeParam(-110, -70, false)

	if diags := p.ValidateParameter(param, "-90"); len(diags) != 0 {
		t.Errorf("numeric string inside range must pass, got %+v", diags)
	}
	if diags := p.ValidateParameter(param, "-120"); len(diags) != 1 {
		t.Errorf("numeric string below range must fail once, got %+v", diags)
	}
}

func TestRequiredAbsent(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	// Required plus a range: absence must yield exactly the required
	// violation, not a range noise diagnostic.
	param := rangeParam(-110, -70, true)

	diags := p.ValidateParameter(param, Absent)
	if len(diags) != 1 {
		t.Fatalf("expected exactly one violation for absent value, got %+v", diags)
	}
	if diags[0].Constraint != string(catalog.KindRequired) {
		t.Errorf("expected required violation, got %s", diags[0].Constraint)
	}
}

func TestRequiredEmptyString(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := &catalog.Parameter{
		ID: "managedElementId", Name: "managedElementId", Type: catalog.TypeString,
		Constraints: []catalog.Constraint{{Kind: catalog.KindRequired, Severity: catalog.SeverityError}},
	}

	diags := p.ValidateParameter(param, "")
	if len(diags) != 1 {
		t.Fatalf("expected exactly one required violation for empty string, got %+v", diags)
	}
	if diags[0].Constraint != string(catalog.KindRequired) {
		t.Errorf("expected required violation, got %+v", diags[0])
	}
}

func TestAllConstraintsEvaluated(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := &catalog.Parameter{
		ID: "userLabel", Name: "userLabel", Type: catalog.TypeString,
		Constraints: []catalog.Constraint{
			{Kind: catalog.KindLength, Severity: catalog.SeverityError, MinLen: 10, MaxLen: 20},
			{Kind: catalog.KindPattern, Severity: catalog.SeverityError, Pattern: "^[a-z]+$", Regex: regexp.MustCompile("^[a-z]+$")},
		},
	}

	// "ABC" violates both length and pattern: no short-circuit.
	diags := p.ValidateParameter(param, "ABC")
	if len(diags) != 2 {
		t.Fatalf("expected both violations collected, got %+v", diags)
	}
}

func TestEnumAndPattern(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := &catalog.Parameter{
		ID: "cellBarred", Name: "cellBarred", Type: catalog.TypeEnumeration,
		Constraints: []catalog.Constraint{
			{Kind: catalog.KindEnum, Severity: catalog.SeverityError, Values: []string{"BARRED", "NOT_BARRED"}},
		},
	}

	if diags := p.ValidateParameter(param, "NOT_BARRED"); len(diags) != 0 {
		t.Errorf("member value must pass, got %+v", diags)
	}
	if diags := p.ValidateParameter(param, "MAYBE"); len(diags) != 1 {
		t.Errorf("non-member must fail once, got %+v", diags)
	}
}

func TestUnknownConstraintKindIsWarning(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := &catalog.Parameter{
		ID: "x", Name: "x",
		Constraints: []catalog.Constraint{{Kind: "futureKind"}},
	}

	diags := p.ValidateParameter(param, 1)
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", diags)
	}
	if diags[0].Severity != catalog.SeverityWarning {
		t.Errorf("unknown constraint kind must be a warning, got %s", diags[0].Severity)
	}
}

func TestCustomValidator(t *testing.T) {
	customs := map[string]CustomValidator{
		"evenOnly": func(param *catalog.Parameter, value interface{}) []diag.Diagnostic {
			if n, ok := value.(int); ok && n%2 != 0 {
				return []diag.Diagnostic{diag.Error(diag.CodeConstraintViolation, param.Name, "evenOnly", "value must be even")}
			}
			return nil
		},
	}
	p := newTestProcessor(Options{}, customs)
	param := &catalog.Parameter{
		ID: "pairs", Name: "pairs",
		Constraints: []catalog.Constraint{{Kind: catalog.KindCustom, Validator: "evenOnly"}},
	}

	if diags := p.ValidateParameter(param, 4); len(diags) != 0 {
		t.Errorf("even value must pass, got %+v", diags)
	}
	if diags := p.ValidateParameter(param, 3); len(diags) != 1 {
		t.Errorf("odd value must fail, got %+v", diags)
	}
}

func TestCustomValidatorMissingIsWarning(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := &catalog.Parameter{
		ID: "x", Name: "x",
		Constraints: []catalog.Constraint{{Kind: catalog.KindCustom, Validator: "ghost"}},
	}

	diags := p.ValidateParameter(param, 1)
	if len(diags) != 1 || diags[0].Severity != catalog.SeverityWarning {
		t.Fatalf("missing validator must degrade to a warning, got %+v", diags)
	}
}

func TestPanicInConstraintIsScoped(t *testing.T) {
	customs := map[string]CustomValidator{
		"boom": func(param *catalog.Parameter, value interface{}) []diag.Diagnostic {
			panic("validator exploded")
		},
	}
	p := newTestProcessor(Options{}, customs)
	param := &catalog.Parameter{
		ID: "x", Name: "x",
		Constraints: []catalog.Constraint{
			{Kind: catalog.KindCustom, Validator: "boom"},
			{Kind: catalog.KindRange, Min: 0, Max: 10},
		},
	}

	diags := p.ValidateParameter(param, 99)
	// The panic becomes a system error and the range check still runs.
	if len(diags) != 2 {
		t.Fatalf("expected panic diagnostic plus range violation, got %+v", diags)
	}
	foundSystem := false
	for _, d := range diags {
		if d.Code == diag.CodeSystem {
			foundSystem = true
		}
	}
	if !foundSystem {
		t.Errorf("expected a system diagnostic, got %+v", diags)
	}
}

func TestDeprecatedParameterWarns(t *testing.T) {
	p := newTestProcessor(Options{}, nil)
	param := &catalog.Parameter{ID: "oldTimer", Name: "oldTimer", Deprecated: true}

	diags := p.ValidateParameter(param, 5)
	if len(diags) != 1 || diags[0].Code != diag.CodeDeprecated {
		t.Fatalf("expected deprecation warning, got %+v", diags)
	}
	if diags := p.ValidateParameter(param, Absent); len(diags) != 0 {
		t.Errorf("absent deprecated parameter must not warn, got %+v", diags)
	}
}

func TestCacheTransparency(t *testing.T) {
	param := rangeParam(-110, -70, true)
	values := []interface{}{-120, -110, -90, -70, -69, "junk", Absent}

	cached := newTestProcessor(Options{EnableCache: true, CacheTTL: time.Minute, CacheShards: 4}, nil)
	defer cached.Close()
	uncached := newTestProcessor(Options{}, nil)

	for _, v := range values {
		// Run the cached processor twice so the second pass hits the cache.
		first := cached.ValidateParameter(param, v)
		second := cached.ValidateParameter(param, v)
		plain := uncached.ValidateParameter(param, v)

		if !sameDiagnostics(first, plain) {
			t.Errorf("value %v: cached first pass differs from uncached: %+v vs %+v", v, first, plain)
		}
		if !sameDiagnostics(second, plain) {
			t.Errorf("value %v: cache hit differs from uncached: %+v vs %+v", v, second, plain)
		}
	}

	stats := cached.CacheStats()
	if stats.Hits == 0 {
		t.Error("expected cache hits on second pass")
	}
}

func TestCacheSeparatesSameKindConstraints(t *testing.T) {
	// Two pattern constraints on one parameter must not share a cache
	// entry: a warm cache would otherwise return the first pattern's
	// clean result for the second and flip the verdict.
	param := &catalog.Parameter{
		ID:   "cellName",
		Name: "cellName",
		Type: catalog.TypeString,
		Constraints: []catalog.Constraint{
			{Kind: catalog.KindPattern, Severity: catalog.SeverityError, Pattern: "^[a-z]+$", Regex: regexp.MustCompile(`^[a-z]+$`)},
			{Kind: catalog.KindPattern, Severity: catalog.SeverityError, Pattern: "^.{3}$", Regex: regexp.MustCompile(`^.{3}$`)},
		},
	}

	cached := newTestProcessor(Options{EnableCache: true, CacheTTL: time.Minute, CacheShards: 4}, nil)
	defer cached.Close()

	// "abcd" satisfies the character-class pattern but not the length
	// pattern, so exactly one violation must survive on every pass.
	cold := cached.ValidateParameter(param, "abcd")
	warm := cached.ValidateParameter(param, "abcd")

	if len(cold) != 1 {
		t.Fatalf("expected one pattern violation uncached, got %+v", cold)
	}
	if !sameDiagnostics(cold, warm) {
		t.Fatalf("cache hit changed the diagnostics: %+v vs %+v", warm, cold)
	}
}

func TestCompiledFastPathEquivalence(t *testing.T) {
	loader := catalog.NewLoader(testLogger())
	cat, err := loader.Load("/nonexistent") // built-in fallback catalog
	if err != nil {
		t.Fatalf("fallback load failed: %v", err)
	}

	generic := newTestProcessor(Options{}, nil)
	compiled := newTestProcessor(Options{EnableCompiled: true}, nil)
	compiled.Compile(cat)

	values := []interface{}{Absent, nil, "", "x", -120, -110, -90, -70, -69, 0, 70000, "BARRED", "bogus", 3.5, true}
	for _, param := range cat.Parameters {
		for _, v := range values {
			g := generic.ValidateParameter(param, v)
			c := compiled.ValidateParameter(param, v)
			if !sameDiagnostics(g, c) {
				t.Errorf("parameter %s value %v: compiled path diverged: %+v vs %+v", param.Name, v, c, g)
			}
		}
	}
}

func TestClearCache(t *testing.T) {
	p := newTestProcessor(Options{EnableCache: true, CacheTTL: time.Minute, CacheShards: 2}, nil)
	defer p.Close()
	param := rangeParam(0, 10, false)

	p.ValidateParameter(param, 5)
	if p.CacheStats().Entries == 0 {
		t.Fatal("expected cache entries after validation")
	}
	p.ClearCache()
	if p.CacheStats().Entries != 0 {
		t.Error("expected empty cache after clear")
	}
}

func TestNormalizeDistinguishesTypes(t *testing.T) {
	if Normalize("5", false) == Normalize(5, false) {
		t.Error("string and int forms must not collide")
	}
	if Normalize(nil, false) == Normalize(nil, true) {
		t.Error("nil value and absent value must not collide")
	}
	if Normalize(int64(5), false) != Normalize(5, false) {
		t.Error("equal integers of different widths should normalize identically")
	}
	if Normalize(float64(5), false) != Normalize(5, false) {
		t.Error("whole floats should normalize like integers")
	}
}

func sameDiagnostics(a, b []diag.Diagnostic) bool {
	if len(a) != len(b) {
		return false
	}
	ka := make([]string, len(a))
	kb := make([]string, len(b))
	for i := range a {
		ka[i] = a[i].Key() + a[i].Message
		kb[i] = b[i].Key() + b[i].Message
	}
	sort.Strings(ka)
	sort.Strings(kb)
	return reflect.DeepEqual(ka, kb)
}

func containsSubstring(s, sub string) bool {
	return strings.Contains(s, sub)
}
