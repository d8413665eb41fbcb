package catalog

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

const sampleCSV = `Parameter Name,MO Class Name,Data Type,Range and Values,Default Value,Parameter Description,Dependencies,LDN,Deprecated
qRxLevMin,ManagedElement.ENodeBFunction.EUtranCellFDD,Integer,Required; -110..-70,-100,Minimum Rx level,qQualMin,"ManagedElement=1,ENodeBFunction=1",false
cellBarred,ManagedElement.ENodeBFunction.EUtranCellFDD,Enumeration,"BARRED, NOT_BARRED",NOT_BARRED,Cell barring state,,,false
userLabel,ManagedElement.ENodeBFunction.EUtranCellFDD,String,Length: 0..128,,Operator label,,,false
oldTimer,ManagedElement.ENodeBFunction,Integer,0..3600,900,Legacy timer,,,true
`

func TestLoadCSV(t *testing.T) {
	loader := NewLoader(testLogger())

	cat, err := loader.LoadCSV(strings.NewReader(sampleCSV), "test.csv")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	if cat.Len() != 4 {
		t.Fatalf("expected 4 parameters, got %d", cat.Len())
	}

	p, ok := cat.Lookup("qRxLevMin")
	if !ok {
		t.Fatal("qRxLevMin not found")
	}
	if p.Type != TypeInteger {
		t.Errorf("expected integer type, got %s", p.Type)
	}
	if len(p.Constraints) != 2 {
		t.Fatalf("expected 2 constraints, got %d", len(p.Constraints))
	}
	if p.Constraints[0].Kind != KindRequired {
		t.Errorf("expected required constraint first, got %s", p.Constraints[0].Kind)
	}
	rng := p.Constraints[1]
	if rng.Kind != KindRange || rng.Min != -110 || rng.Max != -70 {
		t.Errorf("unexpected range constraint: %+v", rng)
	}
	if got := p.LeafClass(); got != "EUtranCellFDD" {
		t.Errorf("expected leaf class EUtranCellFDD, got %s", got)
	}
	if len(p.HierarchyPath) != 3 {
		t.Errorf("expected hierarchy depth 3, got %d", len(p.HierarchyPath))
	}
	if p.Default != int64(-100) {
		t.Errorf("expected default -100, got %v (%T)", p.Default, p.Default)
	}
}

func TestLoadCSV_EnumAndLength(t *testing.T) {
	loader := NewLoader(testLogger())
	cat, err := loader.LoadCSV(strings.NewReader(sampleCSV), "test.csv")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	barred, _ := cat.Lookup("cellBarred")
	if len(barred.Constraints) != 1 || barred.Constraints[0].Kind != KindEnum {
		t.Fatalf("expected one enum constraint, got %+v", barred.Constraints)
	}
	if got := barred.Constraints[0].Values; len(got) != 2 || got[0] != "BARRED" || got[1] != "NOT_BARRED" {
		t.Errorf("unexpected enum values: %v", got)
	}

	label, _ := cat.Lookup("userLabel")
	if len(label.Constraints) != 1 || label.Constraints[0].Kind != KindLength {
		t.Fatalf("expected one length constraint, got %+v", label.Constraints)
	}
	if label.Constraints[0].MinLen != 0 || label.Constraints[0].MaxLen != 128 {
		t.Errorf("unexpected length bounds: %+v", label.Constraints[0])
	}
}

func TestLoadCSV_Dependencies(t *testing.T) {
	loader := NewLoader(testLogger())
	cat, err := loader.LoadCSV(strings.NewReader(sampleCSV), "test.csv")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	group, ok := cat.CrossParams["qRxLevMin->qQualMin"]
	if !ok {
		t.Fatal("dependency constraint group not built")
	}
	dep := group[0]
	if dep.Type != CrossParamDependency {
		t.Errorf("expected dependency type, got %s", dep.Type)
	}
	if dep.Severity != SeverityWarning {
		t.Errorf("expected warning severity, got %s", dep.Severity)
	}
	if len(dep.Parameters) != 2 || dep.Parameters[0] != "qRxLevMin" || dep.Parameters[1] != "qQualMin" {
		t.Errorf("unexpected parameter list: %v", dep.Parameters)
	}
}

func TestLoadCSV_Deprecated(t *testing.T) {
	loader := NewLoader(testLogger())
	cat, err := loader.LoadCSV(strings.NewReader(sampleCSV), "test.csv")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	p, _ := cat.Lookup("oldTimer")
	if !p.Deprecated {
		t.Error("expected oldTimer to be deprecated")
	}
}

func TestLoadCSV_MalformedRowSkipped(t *testing.T) {
	csv := `Parameter Name,MO Class Name,Data Type,Range and Values,Default Value,Parameter Description,Dependencies,LDN,Deprecated
good,ManagedElement,Integer,0..10,,ok,,,false
,ManagedElement,Integer,0..10,,missing name,,,false
badRange,ManagedElement,Integer,10..0,,inverted,,,false
`
	loader := NewLoader(testLogger())
	cat, err := loader.LoadCSV(strings.NewReader(csv), "test.csv")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if cat.Len() != 1 {
		t.Fatalf("expected malformed rows skipped, got %d parameters", cat.Len())
	}
	if _, ok := cat.Lookup("good"); !ok {
		t.Error("good row missing")
	}
}

func TestLoadCSV_DuplicateNameSkipped(t *testing.T) {
	csv := `good,ManagedElement,Integer,0..10,,first,,,false
good,ManagedElement,Integer,0..20,,second,,,false
`
	loader := NewLoader(testLogger())
	cat, err := loader.LoadCSV(strings.NewReader(csv), "test.csv")
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if cat.Len() != 1 {
		t.Fatalf("expected duplicate skipped, got %d", cat.Len())
	}
	p, _ := cat.Lookup("good")
	if p.Constraints[0].Max != 10 {
		t.Error("expected first occurrence to win")
	}
}

func TestLoad_FallbackOnMissingSource(t *testing.T) {
	loader := NewLoader(testLogger())
	cat, err := loader.Load("/nonexistent/catalog.csv")
	if err != nil {
		t.Fatalf("Load with missing source must not fail: %v", err)
	}
	if cat.Source != "builtin:fallback" {
		t.Errorf("expected fallback catalog, got source %s", cat.Source)
	}
	if _, ok := cat.Lookup("qRxLevMin"); !ok {
		t.Error("fallback catalog missing qRxLevMin")
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
parameters:
  - name: earfcndl
    moClass: ManagedElement.ENodeBFunction.EUtranCellFDD
    type: integer
    required: true
    range: {min: 0, max: 65535}
    dependencies: [earfcnul]
  - name: plmnId
    moClass: ManagedElement.ENodeBFunction
    type: string
    pattern: "^[0-9]{5,6}$"
moClasses:
  - name: EUtranCellFDD
    parent: ENodeBFunction
    cardinality: {kind: bounded, min: 0, max: 12}
relationships:
  - source: EUtranCellFDD
    target: ENodeBFunction
    type: requires
crossParameterConstraints:
  - id: earfcn-pairing
    parameters: [earfcndl, earfcnul]
    condition: "earfcndl != None"
    validation: "earfcnul != None"
    severity: error
`
	loader := NewLoader(testLogger())
	cat, err := loader.LoadYAML(strings.NewReader(doc), "test.yaml")
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}

	if cat.Len() != 2 {
		t.Fatalf("expected 2 parameters, got %d", cat.Len())
	}

	p, _ := cat.Lookup("plmnId")
	if len(p.Constraints) != 1 || p.Constraints[0].Kind != KindPattern {
		t.Fatalf("expected pattern constraint, got %+v", p.Constraints)
	}
	if p.Constraints[0].Regex == nil {
		t.Error("pattern regex not compiled at load")
	}

	cell, ok := cat.Class("EUtranCellFDD")
	if !ok {
		t.Fatal("EUtranCellFDD class missing")
	}
	if cell.Cardinality.Kind != CardinalityBounded || cell.Cardinality.Max != 12 {
		t.Errorf("declared cardinality lost: %+v", cell.Cardinality)
	}

	group, ok := cat.CrossParams["earfcn-pairing"]
	if !ok || group[0].Type != CrossParamExpression {
		t.Fatalf("expression constraint not loaded: %+v", group)
	}
	if dep, ok := cat.CrossParams["earfcndl->earfcnul"]; !ok || dep[0].Type != CrossParamDependency {
		t.Error("dependency constraint from dependencies list not built")
	}
}

func TestParseConstraintSpec(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		dataType DataType
		want     []ConstraintKind
		wantErr  bool
	}{
		{name: "empty", spec: "", dataType: TypeString, want: nil},
		{name: "range", spec: "-110..-70", dataType: TypeInteger, want: []ConstraintKind{KindRange}},
		{name: "required and range", spec: "Required; 1..10", dataType: TypeInteger, want: []ConstraintKind{KindRequired, KindRange}},
		{name: "enum list", spec: "ON, OFF", dataType: TypeEnumeration, want: []ConstraintKind{KindEnum}},
		{name: "single enum member", spec: "ON", dataType: TypeEnumeration, want: []ConstraintKind{KindEnum}},
		{name: "length exact", spec: "Length: 8", dataType: TypeString, want: []ConstraintKind{KindLength}},
		{name: "length range", spec: "Length: 1..32", dataType: TypeString, want: []ConstraintKind{KindLength}},
		{name: "pattern", spec: "Pattern: ^[A-Z]+$", dataType: TypeString, want: []ConstraintKind{KindPattern}},
		{name: "unknown marker becomes custom", spec: "checkNeighborCells", dataType: TypeString, want: []ConstraintKind{KindCustom}},
		{name: "inverted range", spec: "10..0", dataType: TypeInteger, wantErr: true},
		{name: "bad pattern", spec: "Pattern: [", dataType: TypeString, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConstraintSpec(tt.spec, tt.dataType)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d constraints, got %+v", len(tt.want), got)
			}
			for i, kind := range tt.want {
				if got[i].Kind != kind {
					t.Errorf("constraint %d: expected %s, got %s", i, kind, got[i].Kind)
				}
			}
		})
	}
}
