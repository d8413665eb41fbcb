package catalog

import "regexp"

// FallbackCatalog returns the small built-in example catalog used when
// the configured source is unreadable. It covers a representative slice
// of an eNodeB parameter model so the engine stays exercisable without
// real catalog data. The degradation is logged by the loader, never
// silent.
func FallbackCatalog() *Catalog {
	cellPath := []string{"ManagedElement", "ENodeBFunction", "EUtranCellFDD"}
	mePath := []string{"ManagedElement"}

	cat := &Catalog{
		MOClasses: map[string]*MOClass{
			"ManagedElement": {
				Name:        "ManagedElement",
				Cardinality: Cardinality{Kind: CardinalitySingle},
				Children:    []string{"ENodeBFunction"},
			},
			"ENodeBFunction": {
				Name:        "ENodeBFunction",
				Parent:      "ManagedElement",
				Cardinality: Cardinality{Kind: CardinalitySingle},
				Children:    []string{"EUtranCellFDD", "AnrFunction"},
			},
			"EUtranCellFDD": {
				Name:        "EUtranCellFDD",
				Parent:      "ENodeBFunction",
				Cardinality: Cardinality{Kind: CardinalityBounded, Min: 0, Max: 12},
			},
			"AnrFunction": {
				Name:        "AnrFunction",
				Parent:      "ENodeBFunction",
				Cardinality: Cardinality{Kind: CardinalitySingle},
			},
		},
		Relationships: []Relationship{
			{Source: "EUtranCellFDD", Target: "ENodeBFunction", Type: RelationRequires},
			{Source: "AnrFunction", Target: "EUtranCellFDD", Type: RelationDependsOn},
		},
		CrossParams: map[string][]*CrossParameterConstraint{
			"qRxLevMin->qQualMin": {{
				ID:          "qRxLevMin->qQualMin",
				Type:        CrossParamDependency,
				Parameters:  []string{"qRxLevMin", "qQualMin"},
				Severity:    SeverityWarning,
				Description: "qQualMin is expected when qRxLevMin is configured",
			}},
		},
		Source: "builtin:fallback",
		Parameters: []*Parameter{
			{
				ID:   "managedElementId",
				Name: "managedElementId",
				Type: TypeString,
				Constraints: []Constraint{
					{Kind: KindRequired, Severity: SeverityError},
					{Kind: KindLength, Severity: SeverityError, MinLen: 1, MaxLen: 64},
				},
				HierarchyPath: mePath,
				Description:   "Managed element identity",
				Source:        "builtin:fallback",
			},
			{
				ID:   "qRxLevMin",
				Name: "qRxLevMin",
				Type: TypeInteger,
				Constraints: []Constraint{
					{Kind: KindRequired, Severity: SeverityError},
					{Kind: KindRange, Severity: SeverityError, Min: -110, Max: -70},
				},
				Default:       int64(-100),
				HierarchyPath: cellPath,
				Description:   "Minimum required Rx level in the cell (dBm)",
				Source:        "builtin:fallback",
			},
			{
				ID:   "qQualMin",
				Name: "qQualMin",
				Type: TypeInteger,
				Constraints: []Constraint{
					{Kind: KindRange, Severity: SeverityError, Min: -34, Max: -3},
				},
				HierarchyPath: cellPath,
				Description:   "Minimum required quality level in the cell (dB)",
				Source:        "builtin:fallback",
			},
			{
				ID:   "cellBarred",
				Name: "cellBarred",
				Type: TypeEnumeration,
				Constraints: []Constraint{
					{Kind: KindEnum, Severity: SeverityError, Values: []string{"BARRED", "NOT_BARRED"}},
				},
				Default:       "NOT_BARRED",
				HierarchyPath: cellPath,
				Description:   "Cell barring state",
				Source:        "builtin:fallback",
			},
			{
				ID:   "tac",
				Name: "tac",
				Type: TypeInteger,
				Constraints: []Constraint{
					{Kind: KindRange, Severity: SeverityError, Min: 0, Max: 65535},
				},
				HierarchyPath: cellPath,
				Description:   "Tracking area code",
				Source:        "builtin:fallback",
			},
			{
				ID:   "userLabel",
				Name: "userLabel",
				Type: TypeString,
				Constraints: []Constraint{
					{Kind: KindLength, Severity: SeverityWarning, MinLen: 0, MaxLen: 128},
					{Kind: KindPattern, Severity: SeverityWarning, Pattern: `^[\w \-]*$`, Regex: regexp.MustCompile(`^[\w \-]*$`)},
				},
				HierarchyPath: cellPath,
				Description:   "Free-text label set by the operator",
				Source:        "builtin:fallback",
			},
		},
	}

	// The fallback is hand-built, so indexing cannot fail.
	_ = cat.index()
	return cat
}
