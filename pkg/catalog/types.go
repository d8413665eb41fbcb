// Package catalog loads and holds the immutable set of parameter,
// MO-class, relationship, and cross-parameter constraint definitions
// that the validation engine checks configurations against.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// DataType is the declared type of a parameter value.
type DataType string

const (
	TypeString      DataType = "string"
	TypeInteger     DataType = "integer"
	TypeFloat       DataType = "float"
	TypeBoolean     DataType = "boolean"
	TypeObject      DataType = "object"
	TypeEnumeration DataType = "enumeration"
)

// ParseDataType normalizes a raw data-type token from a catalog source.
// Unknown tokens default to string so a single bad cell never poisons a row.
func ParseDataType(raw string) DataType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "integer", "int", "long":
		return TypeInteger
	case "float", "double", "number":
		return TypeFloat
	case "boolean", "bool":
		return TypeBoolean
	case "object", "struct", "moref":
		return TypeObject
	case "enumeration", "enum":
		return TypeEnumeration
	default:
		return TypeString
	}
}

// Severity classifies a constraint or diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ConstraintKind identifies the variant of a constraint.
type ConstraintKind string

const (
	KindRequired ConstraintKind = "required"
	KindRange    ConstraintKind = "range"
	KindEnum     ConstraintKind = "enum"
	KindPattern  ConstraintKind = "pattern"
	KindLength   ConstraintKind = "length"
	KindCustom   ConstraintKind = "custom"
)

// Constraint is a single validity rule attached to one parameter.
// It is a tagged union: only the fields for its Kind are meaningful.
// Payloads are resolved once at catalog load, so evaluation never
// probes types at runtime.
type Constraint struct {
	// Kind selects the constraint variant.
	Kind ConstraintKind `json:"kind" yaml:"kind"`

	// Severity of a violation of this constraint. Defaults to error.
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`

	// Message is an optional human-readable override for diagnostics.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// Min and Max bound a range constraint (inclusive).
	Min float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Values is the member set of an enum constraint.
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`

	// Pattern is the source text of a pattern constraint. Regex holds
	// the expression compiled at load time.
	Pattern string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Regex   *regexp.Regexp `json:"-" yaml:"-"`

	// MinLen and MaxLen bound a length constraint. MaxLen of 0 means
	// unbounded above.
	MinLen int `json:"min_len,omitempty" yaml:"min_len,omitempty"`
	MaxLen int `json:"max_len,omitempty" yaml:"max_len,omitempty"`

	// Validator names the host-supplied function a custom constraint
	// delegates to.
	Validator string `json:"validator,omitempty" yaml:"validator,omitempty"`
}

// Describe returns a short human-readable form of the constraint,
// used in diagnostics when no explicit message is set.
func (c Constraint) Describe() string {
	switch c.Kind {
	case KindRequired:
		return "value is required"
	case KindRange:
		return fmt.Sprintf("value must be within %g..%g", c.Min, c.Max)
	case KindEnum:
		return fmt.Sprintf("value must be one of [%s]", strings.Join(c.Values, ", "))
	case KindPattern:
		return fmt.Sprintf("value must match pattern %s", c.Pattern)
	case KindLength:
		if c.MaxLen > 0 {
			return fmt.Sprintf("length must be within %d..%d", c.MinLen, c.MaxLen)
		}
		return fmt.Sprintf("length must be at least %d", c.MinLen)
	case KindCustom:
		return fmt.Sprintf("custom validator %s", c.Validator)
	default:
		return string(c.Kind)
	}
}

// Parameter is a single typed catalog entry. Parameters are immutable
// after catalog load.
type Parameter struct {
	// ID is the stable catalog identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the unique configuration key for this parameter.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Type is the declared data type.
	Type DataType `json:"type" yaml:"type"`

	// Constraints is the ordered rule list evaluated against values.
	Constraints []Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`

	// Default is the catalog default value, if any.
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`

	// HierarchyPath is the ordered MO-class path from root to the
	// class this parameter is scoped under.
	HierarchyPath []string `json:"hierarchy_path,omitempty" yaml:"hierarchy_path,omitempty"`

	// Description is the catalog documentation text.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Source records provenance (file and row/position).
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// LDN is the logical distinguished name from the source, if present.
	LDN string `json:"ldn,omitempty" yaml:"ldn,omitempty"`

	// Tags carries optional structure-group or navigation markers.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Deprecated marks parameters that still validate but should no
	// longer be configured.
	Deprecated bool `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
}

// LeafClass returns the MO class this parameter is scoped under,
// or "" when the parameter has no hierarchy.
func (p *Parameter) LeafClass() string {
	if len(p.HierarchyPath) == 0 {
		return ""
	}
	return p.HierarchyPath[len(p.HierarchyPath)-1]
}

// CardinalityKind identifies how many instances of an MO class may exist.
type CardinalityKind string

const (
	CardinalitySingle    CardinalityKind = "single"
	CardinalityBounded   CardinalityKind = "bounded"
	CardinalityUnbounded CardinalityKind = "unbounded"
)

// Cardinality is an MO class instance-count specification.
type Cardinality struct {
	Kind CardinalityKind `json:"kind" yaml:"kind"`
	Min  int             `json:"min,omitempty" yaml:"min,omitempty"`
	Max  int             `json:"max,omitempty" yaml:"max,omitempty"`
}

// MOClass is a managed-object class: a node type in the configuration
// hierarchy beneath which parameters are scoped.
type MOClass struct {
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Parent      string      `json:"parent,omitempty" yaml:"parent,omitempty"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
	Children    []string    `json:"children,omitempty" yaml:"children,omitempty"`
	Attributes  []string    `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// RelationType classifies a declared relationship between MO classes.
type RelationType string

const (
	RelationRequires  RelationType = "requires"
	RelationReserves  RelationType = "reserves"
	RelationDependsOn RelationType = "depends_on"
	RelationModifies  RelationType = "modifies"
)

// Relationship declares that one MO class's configuration affects
// another's validity.
type Relationship struct {
	Source      string       `json:"source" yaml:"source" validate:"required"`
	Target      string       `json:"target" yaml:"target" validate:"required"`
	Type        RelationType `json:"type" yaml:"type"`
	Cardinality string       `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
}

// CrossParamType identifies the flavor of a cross-parameter constraint.
type CrossParamType string

const (
	// CrossParamDependency is a presence rule: when the first listed
	// parameter is configured the remaining ones must be too.
	CrossParamDependency CrossParamType = "dependency"

	// CrossParamExpression is a rule whose condition and validation are
	// Starlark expressions over the configuration snapshot.
	CrossParamExpression CrossParamType = "expression"
)

// CrossParameterConstraint is a rule whose condition spans two or more
// parameters. Constraints sharing an ID form a group: a parameter pair
// may carry more than one rule.
type CrossParameterConstraint struct {
	ID          string         `json:"id" yaml:"id" validate:"required"`
	Type        CrossParamType `json:"type" yaml:"type"`
	Parameters  []string       `json:"parameters" yaml:"parameters"`
	Condition   string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Validation  string         `json:"validation,omitempty" yaml:"validation,omitempty"`
	Severity    Severity       `json:"severity,omitempty" yaml:"severity,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// Catalog is the immutable definition set the engine validates against.
// A Catalog is built once by a Loader and never mutated afterward;
// reloading means building a new Catalog and swapping it in.
type Catalog struct {
	Parameters    []*Parameter
	MOClasses     map[string]*MOClass
	Relationships []Relationship

	// CrossParams groups cross-parameter constraints by constraint ID.
	CrossParams map[string][]*CrossParameterConstraint

	// Source records where the catalog was loaded from.
	Source string

	byName map[string]*Parameter
}

// Lookup returns the parameter with the given configuration name.
func (c *Catalog) Lookup(name string) (*Parameter, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// Class returns the MO class definition with the given name.
func (c *Catalog) Class(name string) (*MOClass, bool) {
	cls, ok := c.MOClasses[name]
	return cls, ok
}

// Len returns the number of parameters in the catalog.
func (c *Catalog) Len() int {
	return len(c.Parameters)
}

// ConstraintGroups returns the cross-parameter constraint groups keyed
// by ID. Map iteration order is not stable; callers that need
// determinism must sort by ID.
func (c *Catalog) ConstraintGroups() map[string][]*CrossParameterConstraint {
	return c.CrossParams
}

// index rebuilds the name lookup map. Called exactly once by the loader
// before the catalog is published.
func (c *Catalog) index() error {
	c.byName = make(map[string]*Parameter, len(c.Parameters))
	for _, p := range c.Parameters {
		if _, dup := c.byName[p.Name]; dup {
			return fmt.Errorf("duplicate parameter name %q", p.Name)
		}
		c.byName[p.Name] = p
	}
	return nil
}
