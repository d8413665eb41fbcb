// Package constraint evaluates a single parameter's value against its
// constraint list. One evaluation function serves the generic path, the
// compiled fast path, and the cache, so the paths cannot diverge.
package constraint

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

// Absent is the value the engine passes for a parameter that is missing
// from the configuration. Only required constraints apply to absent
// values; evaluating a range against a value that does not exist would
// only produce noise next to the required violation.
var Absent = absentValue{}

type absentValue struct{}

// CustomValidator is a host-supplied validator a custom constraint
// delegates to. Its diagnostics are passed through opaquely.
type CustomValidator func(param *catalog.Parameter, value interface{}) []diag.Diagnostic

// Options configures the processor.
type Options struct {
	// EnableCache controls the per-(parameter, value, constraint-kind)
	// result cache. Disabling it changes timing only, never diagnostics.
	EnableCache bool `yaml:"enable_cache" validate:"-"`

	// CacheTTL is the lifetime of a cache entry.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`

	// CacheShards is the number of cache shards. More shards reduce
	// lock contention for highly parallel validations.
	CacheShards int `yaml:"cache_shards" validate:"min=0,max=1024"`

	// EnableCompiled binds per-parameter check closures at catalog load
	// so the hot path skips constraint dispatch.
	EnableCompiled bool `yaml:"enable_compiled"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		EnableCache:    true,
		CacheTTL:       5 * time.Minute,
		CacheShards:    32,
		EnableCompiled: true,
	}
}

// check is a compiled per-constraint closure. absent tells the closure
// the parameter was missing from the configuration.
type check func(value interface{}, absent bool) []diag.Diagnostic

// Processor validates parameter values. It is safe for concurrent use:
// catalog data is read-only and the cache is sharded.
type Processor struct {
	logger   zerolog.Logger
	opts     Options
	cache    *Cache
	customs  map[string]CustomValidator
	compiled map[string][]check
}

// NewProcessor creates a constraint processor. customs maps validator
// names referenced by custom constraints to host implementations; it may
// be nil.
func NewProcessor(logger zerolog.Logger, opts Options, customs map[string]CustomValidator) *Processor {
	p := &Processor{
		logger:  logger.With().Str("component", "constraint-processor").Logger(),
		opts:    opts,
		customs: customs,
	}
	if opts.EnableCache {
		p.cache = NewCache(opts.CacheShards, opts.CacheTTL)
	}
	return p
}

// Compile binds the fast-path closures for every parameter in the
// catalog. Each closure calls the same evalConstraint the generic path
// uses, so the two paths are behaviorally identical by construction.
func (p *Processor) Compile(cat *catalog.Catalog) {
	if !p.opts.EnableCompiled {
		return
	}

	compiled := make(map[string][]check, cat.Len())
	for _, param := range cat.Parameters {
		param := param
		checks := make([]check, 0, len(param.Constraints))
		for i := range param.Constraints {
			c := param.Constraints[i]
			checks = append(checks, func(value interface{}, absent bool) []diag.Diagnostic {
				return p.evalOne(param, c, value, absent)
			})
		}
		compiled[param.ID] = checks
	}
	p.compiled = compiled

	p.logger.Debug().
		Int("parameters", len(compiled)).
		Msg("Constraint fast path compiled")
}

// ValidateParameter evaluates every constraint on the parameter and
// returns all violations; there is no short-circuit on first failure.
// Pass Absent as the value for a parameter missing from the
// configuration.
func (p *Processor) ValidateParameter(param *catalog.Parameter, value interface{}) []diag.Diagnostic {
	_, absent := value.(absentValue)
	if absent {
		value = nil
	}

	var diags []diag.Diagnostic
	if checks, ok := p.compiled[param.ID]; ok {
		for _, c := range checks {
			diags = append(diags, c(value, absent)...)
		}
	} else {
		for i := range param.Constraints {
			diags = append(diags, p.evalOne(param, param.Constraints[i], value, absent)...)
		}
	}

	if param.Deprecated && !absent {
		diags = append(diags, diag.Warning(diag.CodeDeprecated, param.Name, "deprecated",
			fmt.Sprintf("parameter %s is deprecated and should not be configured", param.Name)).WithValue(value))
	}

	return diags
}

// evalOne evaluates a single constraint, consulting the cache first.
// Cache hits return the stored diagnostics unchanged.
func (p *Processor) evalOne(param *catalog.Parameter, c catalog.Constraint, value interface{}, absent bool) []diag.Diagnostic {
	if p.cache != nil {
		key := Key{ParamID: param.ID, Value: Normalize(value, absent), Kind: c.Kind, Payload: Fingerprint(c)}
		if diags, hit := p.cache.Get(key); hit {
			return diags
		}
		diags := p.evalConstraint(param, c, value, absent)
		p.cache.Put(key, diags)
		return diags
	}
	return p.evalConstraint(param, c, value, absent)
}

// evalConstraint is the single evaluation function shared by the
// generic, compiled, and cached callers. A panic inside one constraint
// is converted into a scoped system diagnostic so the rest of the batch
// still runs.
func (p *Processor) evalConstraint(param *catalog.Parameter, c catalog.Constraint, value interface{}, absent bool) (diags []diag.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("parameter", param.Name).
				Str("constraint", string(c.Kind)).
				Interface("panic", r).
				Msg("Constraint evaluation panicked")
			diags = []diag.Diagnostic{
				diag.Error(diag.CodeSystem, param.Name, string(c.Kind),
					fmt.Sprintf("internal failure evaluating %s constraint: %v", c.Kind, r)).WithValue(value),
			}
		}
	}()

	// Absent values are only meaningful to required constraints.
	if absent && c.Kind != catalog.KindRequired {
		return nil
	}

	switch c.Kind {
	case catalog.KindRequired:
		return p.evalRequired(param, c, value, absent)
	case catalog.KindRange:
		return p.evalRange(param, c, value)
	case catalog.KindEnum:
		return p.evalEnum(param, c, value)
	case catalog.KindPattern:
		return p.evalPattern(param, c, value)
	case catalog.KindLength:
		return p.evalLength(param, c, value)
	case catalog.KindCustom:
		return p.evalCustom(param, c, value)
	default:
		// Unknown constraint kinds degrade to a warning so a newer
		// catalog never breaks an older engine.
		return []diag.Diagnostic{
			diag.Warning(diag.CodeConstraintViolation, param.Name, string(c.Kind),
				fmt.Sprintf("unknown constraint type %q on parameter %s", c.Kind, param.Name)),
		}
	}
}

func (p *Processor) evalRequired(param *catalog.Parameter, c catalog.Constraint, value interface{}, absent bool) []diag.Diagnostic {
	if absent || value == nil || value == "" {
		return []diag.Diagnostic{p.violation(param, c, value,
			fmt.Sprintf("parameter %s is required", param.Name))}
	}
	return nil
}

func (p *Processor) evalRange(param *catalog.Parameter, c catalog.Constraint, value interface{}) []diag.Diagnostic {
	n, ok := toNumber(value)
	if !ok {
		return []diag.Diagnostic{
			diag.Error(diag.CodeTypeMismatch, param.Name, string(c.Kind),
				fmt.Sprintf("parameter %s: value %v is not numeric", param.Name, value)).WithValue(value),
		}
	}
	// Both bounds are checked, but at most one violation is emitted:
	// below-min wins when it applies.
	if n < c.Min {
		return []diag.Diagnostic{p.violation(param, c, value,
			fmt.Sprintf("parameter %s: value %v is below minimum %g", param.Name, value, c.Min))}
	}
	if n > c.Max {
		return []diag.Diagnostic{p.violation(param, c, value,
			fmt.Sprintf("parameter %s: value %v is above maximum %g", param.Name, value, c.Max))}
	}
	return nil
}

func (p *Processor) evalEnum(param *catalog.Parameter, c catalog.Constraint, value interface{}) []diag.Diagnostic {
	s := stringForm(value)
	for _, member := range c.Values {
		if s == member {
			return nil
		}
	}
	return []diag.Diagnostic{p.violation(param, c, value,
		fmt.Sprintf("parameter %s: value %v is not in %v", param.Name, value, c.Values))}
}

func (p *Processor) evalPattern(param *catalog.Parameter, c catalog.Constraint, value interface{}) []diag.Diagnostic {
	if c.Regex == nil {
		return []diag.Diagnostic{
			diag.Warning(diag.CodeConstraintViolation, param.Name, string(c.Kind),
				fmt.Sprintf("parameter %s: pattern constraint has no compiled expression", param.Name)),
		}
	}
	if !c.Regex.MatchString(stringForm(value)) {
		return []diag.Diagnostic{p.violation(param, c, value,
			fmt.Sprintf("parameter %s: value %v does not match pattern %s", param.Name, value, c.Pattern))}
	}
	return nil
}

func (p *Processor) evalLength(param *catalog.Parameter, c catalog.Constraint, value interface{}) []diag.Diagnostic {
	length := len(stringForm(value))
	if length < c.MinLen {
		return []diag.Diagnostic{p.violation(param, c, value,
			fmt.Sprintf("parameter %s: length %d is below minimum %d", param.Name, length, c.MinLen))}
	}
	if c.MaxLen > 0 && length > c.MaxLen {
		return []diag.Diagnostic{p.violation(param, c, value,
			fmt.Sprintf("parameter %s: length %d is above maximum %d", param.Name, length, c.MaxLen))}
	}
	return nil
}

func (p *Processor) evalCustom(param *catalog.Parameter, c catalog.Constraint, value interface{}) []diag.Diagnostic {
	validator, ok := p.customs[c.Validator]
	if !ok {
		return []diag.Diagnostic{
			diag.Warning(diag.CodeConstraintViolation, param.Name, c.Validator,
				fmt.Sprintf("parameter %s: no validator registered for %q", param.Name, c.Validator)),
		}
	}
	return validator(param, value)
}

// violation builds the standard constraint-violation diagnostic,
// honoring the constraint's declared severity and message override.
func (p *Processor) violation(param *catalog.Parameter, c catalog.Constraint, value interface{}, message string) diag.Diagnostic {
	if c.Message != "" {
		message = c.Message
	}
	severity := c.Severity
	if severity == "" {
		severity = catalog.SeverityError
	}
	d := diag.Diagnostic{
		Code:       diag.CodeConstraintViolation,
		Severity:   severity,
		Parameter:  param.Name,
		Constraint: string(c.Kind),
		Message:    message,
	}
	return d.WithValue(value)
}

// CacheStats returns cache counters, or zeroes when the cache is disabled.
func (p *Processor) CacheStats() CacheStats {
	if p.cache == nil {
		return CacheStats{}
	}
	return p.cache.Stats()
}

// ClearCache drops all cached constraint results.
func (p *Processor) ClearCache() {
	if p.cache != nil {
		p.cache.Clear()
	}
}

// Close stops the cache sweeper.
func (p *Processor) Close() {
	if p.cache != nil {
		p.cache.Close()
	}
}

// toNumber coerces a configured value to float64 for range checks.
func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// stringForm is the canonical string representation used by enum,
// pattern, and length checks.
func stringForm(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
