// Package hierarchy checks managed-object cardinality and the declared
// relationships between MO classes for a configuration snapshot.
package hierarchy

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

// RelationRule is a host-supplied evaluation for one relationship type.
// sourceParams and targetParams hold the configured values scoped under
// the relationship's source and target classes.
type RelationRule func(rel catalog.Relationship, sourceParams, targetParams map[string]interface{}) []diag.Diagnostic

// Validator checks MO cardinality and class relationships. The built-in
// relationship evaluation is a generic present/absent check; hosts can
// register more specific rules per relationship type.
type Validator struct {
	logger zerolog.Logger
	rules  map[catalog.RelationType]RelationRule
}

// NewValidator creates a hierarchy validator.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{
		logger: logger.With().Str("component", "hierarchy-validator").Logger(),
		rules:  make(map[catalog.RelationType]RelationRule),
	}
}

// RegisterRule installs a host-supplied rule for a relationship type,
// replacing the generic present/absent check for that type.
func (v *Validator) RegisterRule(t catalog.RelationType, rule RelationRule) {
	v.rules[t] = rule
}

// ValidateHierarchy resolves each configured parameter's leaf MO class
// and checks the class's cardinality against the configured value.
// Parameters unknown to the catalog are skipped here; the orchestrator
// reports those in the parameter phase.
func (v *Validator) ValidateHierarchy(cat *catalog.Catalog, cfg map[string]interface{}) []diag.Diagnostic {
	var diags []diag.Diagnostic

	for _, name := range sortedKeys(cfg) {
		param, ok := cat.Lookup(name)
		if !ok || len(param.HierarchyPath) == 0 {
			continue
		}

		leaf := param.LeafClass()
		cls, ok := cat.Class(leaf)
		if !ok {
			diags = append(diags, diag.Error(diag.CodeUnknownClass, name, leaf,
				fmt.Sprintf("parameter %s references unknown MO class %s", name, leaf)))
			continue
		}

		diags = append(diags, checkCardinality(cls, name, cfg[name])...)
	}

	return diags
}

// checkCardinality applies the class's cardinality spec to one value.
func checkCardinality(cls *catalog.MOClass, param string, value interface{}) []diag.Diagnostic {
	switch cls.Cardinality.Kind {
	case catalog.CardinalitySingle:
		if value == nil {
			return []diag.Diagnostic{cardinalityError(cls, param, value,
				fmt.Sprintf("MO class %s requires a present value for %s", cls.Name, param))}
		}
		if _, isArray := value.([]interface{}); isArray {
			return []diag.Diagnostic{cardinalityError(cls, param, value,
				fmt.Sprintf("MO class %s is single-instance; %s must not be an array", cls.Name, param))}
		}
		return nil

	case catalog.CardinalityBounded:
		// A scalar counts as one instance; arrays are counted by length.
		n := 1
		if arr, isArray := value.([]interface{}); isArray {
			n = len(arr)
		}
		if n < cls.Cardinality.Min || n > cls.Cardinality.Max {
			return []diag.Diagnostic{cardinalityError(cls, param, value,
				fmt.Sprintf("MO class %s allows %d..%d instances; %s has %d",
					cls.Name, cls.Cardinality.Min, cls.Cardinality.Max, param, n))}
		}
		return nil

	default:
		// Unbounded always passes.
		return nil
	}
}

func cardinalityError(cls *catalog.MOClass, param string, value interface{}, message string) diag.Diagnostic {
	return diag.Error(diag.CodeCardinality, param, cls.Name, message).WithValue(value)
}

// ValidateRelationships evaluates every declared relationship whose
// source class has configured values. requires and reserves demand the
// target class be configured too; depends_on and modifies run the same
// generic check at warning severity unless the host registered a more
// specific rule.
func (v *Validator) ValidateRelationships(cat *catalog.Catalog, cfg map[string]interface{}) []diag.Diagnostic {
	classParams := groupByClass(cat, cfg)

	var diags []diag.Diagnostic
	for _, rel := range cat.Relationships {
		sourceParams := classParams[rel.Source]
		if len(sourceParams) == 0 {
			continue
		}
		targetParams := classParams[rel.Target]

		if rule, ok := v.rules[rel.Type]; ok {
			diags = append(diags, rule(rel, sourceParams, targetParams)...)
			continue
		}

		if len(targetParams) > 0 {
			continue
		}

		severity := catalog.SeverityError
		switch rel.Type {
		case catalog.RelationDependsOn, catalog.RelationModifies:
			severity = catalog.SeverityWarning
		}
		diags = append(diags, diag.Diagnostic{
			Code:       diag.CodeRelationship,
			Severity:   severity,
			Parameter:  anyParam(sourceParams),
			Constraint: fmt.Sprintf("%s %s %s", rel.Source, rel.Type, rel.Target),
			Message: fmt.Sprintf("MO class %s %s %s, but %s has no configured parameters",
				rel.Source, rel.Type, rel.Target, rel.Target),
		})
	}

	return diags
}

// groupByClass maps each MO class to the configured parameters scoped
// under it.
func groupByClass(cat *catalog.Catalog, cfg map[string]interface{}) map[string]map[string]interface{} {
	byClass := make(map[string]map[string]interface{})
	for name, value := range cfg {
		param, ok := cat.Lookup(name)
		if !ok {
			continue
		}
		leaf := param.LeafClass()
		if leaf == "" {
			continue
		}
		if byClass[leaf] == nil {
			byClass[leaf] = make(map[string]interface{})
		}
		byClass[leaf][name] = value
	}
	return byClass
}

// anyParam returns the lexically smallest parameter name so diagnostics
// stay deterministic.
func anyParam(params map[string]interface{}) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
