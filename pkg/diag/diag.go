// Package diag defines the structured diagnostics the validation phases
// produce. An invalid configuration is reported as diagnostics inside a
// result, never as a returned error; errors are reserved for engine-level
// failures such as an unavailable catalog.
package diag

import (
	"fmt"

	"github.com/paramguard/paramguard/pkg/catalog"
)

// Code classifies a diagnostic by the phase and failure that produced it.
type Code string

const (
	// CodeUnknownParameter reports a configuration key absent from the catalog.
	CodeUnknownParameter Code = "PARAMETER_UNKNOWN"

	// CodeConstraintViolation reports a parameter value violating one of
	// its own constraints.
	CodeConstraintViolation Code = "PARAMETER_CONSTRAINT"

	// CodeTypeMismatch reports a value that cannot be coerced to the
	// type a constraint needs.
	CodeTypeMismatch Code = "PARAMETER_TYPE"

	// CodeDeprecated reports a configured value for a deprecated parameter.
	CodeDeprecated Code = "PARAMETER_DEPRECATED"

	// CodeCrossParameter reports a violated multi-parameter rule.
	CodeCrossParameter Code = "CROSS_PARAMETER"

	// CodeUnknownClass reports a parameter scoped under an MO class the
	// catalog does not declare.
	CodeUnknownClass Code = "MO_CLASS_UNKNOWN"

	// CodeCardinality reports an MO-class instance count outside its
	// declared cardinality.
	CodeCardinality Code = "MO_CARDINALITY"

	// CodeRelationship reports a violated declared relationship between
	// MO classes.
	CodeRelationship Code = "RELATIONSHIP"

	// CodeConditional reports a violated conditional expression rule.
	CodeConditional Code = "CONDITIONAL"

	// CodeSchema reports gross structural or type nonconformance.
	CodeSchema Code = "SCHEMA"

	// CodeSystem reports an internal failure scoped to one check, such
	// as a recovered panic during constraint evaluation.
	CodeSystem Code = "SYSTEM"
)

// Diagnostic is one structured finding about a configuration. The
// engine's validity flag is derived purely from error-severity
// diagnostics; warnings never affect validity.
type Diagnostic struct {
	// Code classifies the finding.
	Code Code `json:"code"`

	// Severity is error or warning.
	Severity catalog.Severity `json:"severity"`

	// Parameter is the configuration key the finding is about, if any.
	Parameter string `json:"parameter,omitempty"`

	// Constraint identifies the violated rule (constraint kind,
	// cross-parameter constraint ID, relationship, ...).
	Constraint string `json:"constraint,omitempty"`

	// Value is the offending configured value, if any.
	Value interface{} `json:"value,omitempty"`

	// Message is the human-readable explanation.
	Message string `json:"message"`
}

// Error creates an error-severity diagnostic.
func Error(code Code, parameter, constraint, message string) Diagnostic {
	return Diagnostic{
		Code:       code,
		Severity:   catalog.SeverityError,
		Parameter:  parameter,
		Constraint: constraint,
		Message:    message,
	}
}

// Warning creates a warning-severity diagnostic.
func Warning(code Code, parameter, constraint, message string) Diagnostic {
	return Diagnostic{
		Code:       code,
		Severity:   catalog.SeverityWarning,
		Parameter:  parameter,
		Constraint: constraint,
		Message:    message,
	}
}

// WithValue attaches the offending value to the diagnostic.
func (d Diagnostic) WithValue(value interface{}) Diagnostic {
	d.Value = value
	return d
}

// Key is the identity used when unioning phase results: diagnostics with
// the same code, parameter, value, and constraint are duplicates.
func (d Diagnostic) Key() string {
	return fmt.Sprintf("%s|%s|%v|%s", d.Code, d.Parameter, d.Value, d.Constraint)
}

// String implements fmt.Stringer for log and CLI output.
func (d Diagnostic) String() string {
	if d.Parameter != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", d.Severity, d.Parameter, d.Message, d.Code)
	}
	return fmt.Sprintf("[%s] %s (%s)", d.Severity, d.Message, d.Code)
}

// Partition splits diagnostics into errors and warnings.
func Partition(diags []Diagnostic) (errors, warnings []Diagnostic) {
	for _, d := range diags {
		if d.Severity == catalog.SeverityError {
			errors = append(errors, d)
		} else {
			warnings = append(warnings, d)
		}
	}
	return errors, warnings
}

// Dedup removes diagnostics with identical keys, keeping first
// occurrences in order.
func Dedup(diags []Diagnostic) []Diagnostic {
	seen := make(map[string]struct{}, len(diags))
	out := diags[:0:0]
	for _, d := range diags {
		k := d.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
