// Package schema checks the gross shape of a configuration against a
// CUE schema generated from the catalog. It runs before fine-grained
// constraint checks are meaningful, so wrong-shape input produces a
// clear schema diagnostic instead of a cascade of constraint noise.
package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/rs/zerolog"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/diag"
)

// Validator validates configuration shape against a schema built once
// from the catalog.
type Validator struct {
	logger zerolog.Logger
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator generates a CUE schema from the catalog and compiles it.
// The schema is open: unknown keys pass here and are reported by the
// parameter phase instead.
func NewValidator(logger zerolog.Logger, cat *catalog.Catalog) (*Validator, error) {
	v := &Validator{
		logger: logger.With().Str("component", "schema-validator").Logger(),
		ctx:    cuecontext.New(),
	}

	source := generateSchema(cat)
	schema := v.ctx.CompileString(source, cue.Filename("catalog-schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile generated schema: %w", err)
	}
	v.schema = schema

	v.logger.Debug().
		Int("parameters", cat.Len()).
		Msg("Generated configuration schema from catalog")
	return v, nil
}

// Validate unifies the configuration with the generated schema and
// converts CUE errors into schema diagnostics. An empty configuration
// is trivially well-shaped.
func (v *Validator) Validate(cfg map[string]interface{}) []diag.Diagnostic {
	if len(cfg) == 0 {
		return nil
	}

	dataVal := v.ctx.Encode(cfg)
	if err := dataVal.Err(); err != nil {
		return []diag.Diagnostic{diag.Error(diag.CodeSchema, "", "",
			fmt.Sprintf("configuration cannot be encoded: %v", err))}
	}

	unified := v.schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return v.convertErrors(err, cfg)
	}
	return nil
}

// convertErrors maps each CUE error to a diagnostic, attributing it to
// the first element of the error path when one exists.
func (v *Validator) convertErrors(err error, cfg map[string]interface{}) []diag.Diagnostic {
	var diags []diag.Diagnostic
	for _, e := range cueerrors.Errors(err) {
		parameter := ""
		if path := e.Path(); len(path) > 0 {
			parameter = path[0]
		}
		d := diag.Error(diag.CodeSchema, parameter, "shape",
			strings.TrimSpace(cueerrors.Details(e, nil)))
		if parameter != "" {
			if value, ok := cfg[parameter]; ok {
				d = d.WithValue(value)
			}
		}
		diags = append(diags, d)
	}
	return diags
}

// generateSchema renders the catalog as an open CUE struct. Each
// parameter gets an optional field whose coarse type also admits an
// array form, since multi-instance MO classes carry one value per
// instance.
func generateSchema(cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("{\n")
	for _, p := range cat.Parameters {
		base := cueType(p.Type)
		if base == "_" {
			fmt.Fprintf(&b, "\t%q?: _\n", p.Name)
			continue
		}
		fmt.Fprintf(&b, "\t%q?: %s | [...%s]\n", p.Name, base, base)
	}
	b.WriteString("\t...\n}\n")
	return b.String()
}

// cueType maps a catalog data type to its coarse CUE counterpart.
func cueType(t catalog.DataType) string {
	switch t {
	case catalog.TypeInteger:
		return "int"
	case catalog.TypeFloat:
		return "number"
	case catalog.TypeBoolean:
		return "bool"
	case catalog.TypeObject:
		return "_"
	default:
		// Strings and enumerations both arrive as text.
		return "string"
	}
}
