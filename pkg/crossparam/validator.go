// Package crossparam evaluates multi-parameter dependency and expression
// constraints over a full configuration snapshot. Evaluation is
// read-only and order-independent: running the constraint set in any
// permutation yields the same diagnostic set.
package crossparam

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/syntax"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

// Validator evaluates cross-parameter constraints. Expression
// constraints use Starlark as the condition/validation language;
// expressions are syntax-checked once at compile time.
type Validator struct {
	logger  zerolog.Logger
	timeout time.Duration
	groups  map[string][]*rule
	order   []string
}

// rule is a compiled cross-parameter constraint.
type rule struct {
	constraint *catalog.CrossParameterConstraint
	condition  syntax.Expr
	validation syntax.Expr
}

// NewValidator creates a cross-parameter validator. timeout bounds a
// single expression evaluation; zero means one second.
func NewValidator(logger zerolog.Logger, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Validator{
		logger:  logger.With().Str("component", "crossparam-validator").Logger(),
		timeout: timeout,
		groups:  make(map[string][]*rule),
	}
}

// CompileCatalog parses all expression constraints in the catalog. A
// constraint with an unparseable expression is skipped with a warning so
// one bad rule never takes down initialization.
func (v *Validator) CompileCatalog(cat *catalog.Catalog) {
	groups := make(map[string][]*rule, len(cat.CrossParams))

	for id, constraints := range cat.CrossParams {
		for _, c := range constraints {
			r, err := v.compile(c)
			if err != nil {
				v.logger.Warn().Err(err).
					Str("constraint", c.ID).
					Msg("Skipping cross-parameter constraint with invalid expression")
				continue
			}
			groups[id] = append(groups[id], r)
		}
	}

	order := make([]string, 0, len(groups))
	for id := range groups {
		order = append(order, id)
	}
	sort.Strings(order)

	v.groups = groups
	v.order = order

	v.logger.Debug().
		Int("groups", len(groups)).
		Msg("Cross-parameter constraints compiled")
}

func (v *Validator) compile(c *catalog.CrossParameterConstraint) (*rule, error) {
	r := &rule{constraint: c}
	if c.Type != catalog.CrossParamExpression {
		return r, nil
	}

	if c.Condition != "" {
		expr, err := syntax.ParseExpr(c.ID+":condition", c.Condition, 0)
		if err != nil {
			return nil, fmt.Errorf("condition: %w", err)
		}
		r.condition = expr
	}
	if c.Validation == "" {
		return nil, fmt.Errorf("expression constraint %s has no validation expression", c.ID)
	}
	expr, err := syntax.ParseExpr(c.ID+":validation", c.Validation, 0)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	r.validation = expr

	return r, nil
}

// Validate evaluates every compiled constraint of the given types
// against the configuration snapshot. With no types it evaluates all.
func (v *Validator) Validate(cfg map[string]interface{}, types ...catalog.CrossParamType) []diag.Diagnostic {
	filter := make(map[catalog.CrossParamType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}

	var diags []diag.Diagnostic
	for _, id := range v.order {
		for _, r := range v.groups[id] {
			if len(filter) > 0 && !filter[r.constraint.Type] {
				continue
			}
			diags = append(diags, v.evaluate(r, cfg)...)
		}
	}
	return diags
}

// evaluate applies one rule to the snapshot. A constraint whose
// referenced parameters are all absent is not triggered.
func (v *Validator) evaluate(r *rule, cfg map[string]interface{}) []diag.Diagnostic {
	c := r.constraint

	anyPresent := false
	for _, name := range c.Parameters {
		if _, ok := cfg[name]; ok {
			anyPresent = true
			break
		}
	}
	if !anyPresent {
		return nil
	}

	switch c.Type {
	case catalog.CrossParamDependency:
		return v.evalDependency(c, cfg)
	case catalog.CrossParamExpression:
		return v.evalExpression(r, cfg)
	default:
		return []diag.Diagnostic{
			diag.Warning(diag.CodeCrossParameter, firstParam(c), c.ID,
				fmt.Sprintf("unknown cross-parameter constraint type %q", c.Type)),
		}
	}
}

// evalDependency: when the first listed parameter is configured, the
// remaining ones must be too.
func (v *Validator) evalDependency(c *catalog.CrossParameterConstraint, cfg map[string]interface{}) []diag.Diagnostic {
	if len(c.Parameters) < 2 {
		return nil
	}
	trigger := c.Parameters[0]
	if _, ok := cfg[trigger]; !ok {
		return nil
	}

	var diags []diag.Diagnostic
	for _, dependent := range c.Parameters[1:] {
		if _, ok := cfg[dependent]; ok {
			continue
		}
		msg := c.Description
		if msg == "" {
			msg = fmt.Sprintf("parameter %s is expected when %s is configured", dependent, trigger)
		}
		diags = append(diags, diag.Diagnostic{
			Code:       diag.CodeCrossParameter,
			Severity:   severityOrDefault(c.Severity, catalog.SeverityWarning),
			Parameter:  trigger,
			Constraint: c.ID,
			Message:    msg,
		})
	}
	return diags
}

// evalExpression evaluates the condition and, when it holds, the
// validation expression. An evaluation failure is reported as a scoped
// warning, never an abort.
func (v *Validator) evalExpression(r *rule, cfg map[string]interface{}) []diag.Diagnostic {
	c := r.constraint

	if r.condition != nil {
		triggered, err := v.evalBool(r.condition, c, cfg)
		if err != nil {
			return []diag.Diagnostic{evalFailure(c, "condition", err)}
		}
		if !triggered {
			return nil
		}
	}

	ok, err := v.evalBool(r.validation, c, cfg)
	if err != nil {
		return []diag.Diagnostic{evalFailure(c, "validation", err)}
	}
	if ok {
		return nil
	}

	msg := c.Description
	if msg == "" {
		msg = fmt.Sprintf("cross-parameter constraint %s violated", c.ID)
	}
	return []diag.Diagnostic{{
		Code:       diag.CodeConditional,
		Severity:   severityOrDefault(c.Severity, catalog.SeverityError),
		Parameter:  firstParam(c),
		Constraint: c.ID,
		Message:    msg,
	}}
}

func evalFailure(c *catalog.CrossParameterConstraint, stage string, err error) diag.Diagnostic {
	return diag.Warning(diag.CodeConditional, firstParam(c), c.ID,
		fmt.Sprintf("constraint %s %s failed to evaluate: %v", c.ID, stage, err))
}

func firstParam(c *catalog.CrossParameterConstraint) string {
	if len(c.Parameters) > 0 {
		return c.Parameters[0]
	}
	return ""
}

func severityOrDefault(s, def catalog.Severity) catalog.Severity {
	if s == "" {
		return def
	}
	return s
}
