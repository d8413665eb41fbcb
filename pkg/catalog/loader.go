package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Column layout of the tabular catalog export.
const (
	colName = iota
	colMOClass
	colDataType
	colRangeValues
	colDefault
	colDescription
	colDependencies
	colLDN
	colDeprecated
	columnCount
)

var rangePattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\.\.(-?\d+(?:\.\d+)?)$`)

// Loader builds immutable catalogs from tabular (CSV) or YAML sources.
// Loading is atomic: a catalog is only returned fully built and indexed,
// and a malformed row is skipped with a warning rather than failing the
// whole load.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a catalog loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "catalog-loader").Logger(),
	}
}

// Load builds a catalog from the given source path. The format is chosen
// by extension: .yaml/.yml parse as a catalog document, anything else as
// the tabular CSV export. An unreadable or missing source falls back to
// the built-in example catalog so the engine can still start.
func (l *Loader) Load(source string) (*Catalog, error) {
	f, err := os.Open(source)
	if err != nil {
		l.logger.Warn().Err(err).
			Str("source", source).
			Msg("Catalog source unreadable, using built-in fallback catalog")
		return FallbackCatalog(), nil
	}
	defer f.Close()

	var cat *Catalog
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		cat, err = l.LoadYAML(f, source)
	default:
		cat, err = l.LoadCSV(f, source)
	}
	if err != nil {
		l.logger.Warn().Err(err).
			Str("source", source).
			Msg("Catalog source unparseable, using built-in fallback catalog")
		return FallbackCatalog(), nil
	}

	l.logger.Info().
		Str("source", source).
		Int("parameters", cat.Len()).
		Int("mo_classes", len(cat.MOClasses)).
		Int("relationships", len(cat.Relationships)).
		Int("cross_param_groups", len(cat.CrossParams)).
		Msg("Catalog loaded")

	return cat, nil
}

// LoadCSV parses the tabular catalog export. Expected columns:
// Parameter Name, MO Class Name, Data Type, Range and Values,
// Default Value, Parameter Description, Dependencies, LDN, Deprecated.
func (l *Loader) LoadCSV(r io.Reader, source string) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog source is empty")
	}

	// Skip a header row when the first cell is the column title.
	rows := records
	if strings.EqualFold(strings.TrimSpace(records[0][colName]), "Parameter Name") {
		rows = records[1:]
	}

	cat := &Catalog{
		MOClasses:   make(map[string]*MOClass),
		CrossParams: make(map[string][]*CrossParameterConstraint),
		Source:      source,
	}
	seen := make(map[string]struct{}, len(rows))

	for i, row := range rows {
		param, deps, err := l.parseRow(row, fmt.Sprintf("%s:%d", source, i+1))
		if err != nil {
			l.logger.Warn().Err(err).
				Str("source", source).
				Int("row", i+1).
				Msg("Skipping malformed catalog row")
			continue
		}
		if _, dup := seen[param.Name]; dup {
			l.logger.Warn().
				Str("parameter", param.Name).
				Int("row", i+1).
				Msg("Skipping duplicate parameter name")
			continue
		}

		seen[param.Name] = struct{}{}
		cat.Parameters = append(cat.Parameters, param)
		registerHierarchy(cat, param.HierarchyPath)
		for _, dep := range deps {
			cat.CrossParams[dep.ID] = append(cat.CrossParams[dep.ID], dep)
		}
	}

	if err := cat.index(); err != nil {
		return nil, err
	}
	return cat, nil
}

// parseRow converts one tabular record into a parameter plus any
// dependency constraints declared in its Dependencies field.
func (l *Loader) parseRow(row []string, provenance string) (*Parameter, []*CrossParameterConstraint, error) {
	if len(row) < colRangeValues+1 {
		return nil, nil, fmt.Errorf("row has %d columns, need at least %d", len(row), colRangeValues+1)
	}
	cell := func(idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	name := cell(colName)
	if name == "" {
		return nil, nil, fmt.Errorf("parameter name is empty")
	}

	dataType := ParseDataType(cell(colDataType))
	constraints, err := ParseConstraintSpec(cell(colRangeValues), dataType)
	if err != nil {
		return nil, nil, fmt.Errorf("parameter %s: %w", name, err)
	}

	param := &Parameter{
		ID:            name,
		Name:          name,
		Type:          dataType,
		Constraints:   constraints,
		HierarchyPath: splitHierarchy(cell(colMOClass)),
		Description:   cell(colDescription),
		Source:        provenance,
		LDN:           cell(colLDN),
		Deprecated:    isTruthy(cell(colDeprecated)),
	}
	if def := cell(colDefault); def != "" {
		param.Default = coerceDefault(def, dataType)
	}

	var deps []*CrossParameterConstraint
	for _, token := range splitList(cell(colDependencies)) {
		deps = append(deps, &CrossParameterConstraint{
			ID:          fmt.Sprintf("%s->%s", name, token),
			Type:        CrossParamDependency,
			Parameters:  []string{name, token},
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("%s is expected when %s is configured", token, name),
		})
	}

	return param, deps, nil
}

// ParseConstraintSpec parses the "Range and Values" grammar into a
// constraint list. Markers are separated by ';':
//
//	Required            presence constraint
//	-110..-70           inclusive numeric range
//	Length: 8 (or a..b) string length bounds
//	Pattern: <regexp>   regular-expression match
//	a, b, c             enumeration member list
//
// Unknown markers are preserved as custom constraints so host validators
// can pick them up.
func ParseConstraintSpec(spec string, dataType DataType) ([]Constraint, error) {
	var constraints []Constraint
	for _, marker := range strings.Split(spec, ";") {
		marker = strings.TrimSpace(marker)
		if marker == "" {
			continue
		}

		switch {
		case strings.EqualFold(marker, "required"):
			constraints = append(constraints, Constraint{Kind: KindRequired, Severity: SeverityError})

		case rangePattern.MatchString(marker):
			m := rangePattern.FindStringSubmatch(marker)
			min, _ := strconv.ParseFloat(m[1], 64)
			max, _ := strconv.ParseFloat(m[2], 64)
			if min > max {
				return nil, fmt.Errorf("range %q has min greater than max", marker)
			}
			constraints = append(constraints, Constraint{Kind: KindRange, Severity: SeverityError, Min: min, Max: max})

		case strings.HasPrefix(strings.ToLower(marker), "length:"):
			c, err := parseLengthMarker(marker)
			if err != nil {
				return nil, err
			}
			constraints = append(constraints, c)

		case strings.HasPrefix(strings.ToLower(marker), "pattern:"):
			expr := strings.TrimSpace(marker[len("pattern:"):])
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
			}
			constraints = append(constraints, Constraint{Kind: KindPattern, Severity: SeverityError, Pattern: expr, Regex: re})

		case strings.Contains(marker, ","):
			constraints = append(constraints, Constraint{Kind: KindEnum, Severity: SeverityError, Values: splitList(marker)})

		case dataType == TypeEnumeration:
			// A single bare token on an enumeration parameter is a
			// one-member value set.
			constraints = append(constraints, Constraint{Kind: KindEnum, Severity: SeverityError, Values: []string{marker}})

		default:
			constraints = append(constraints, Constraint{Kind: KindCustom, Severity: SeverityWarning, Validator: marker})
		}
	}
	return constraints, nil
}

func parseLengthMarker(marker string) (Constraint, error) {
	body := strings.TrimSpace(marker[len("length:"):])
	if m := rangePattern.FindStringSubmatch(body); m != nil {
		min, _ := strconv.Atoi(m[1])
		max, _ := strconv.Atoi(m[2])
		if min > max {
			return Constraint{}, fmt.Errorf("length %q has min greater than max", body)
		}
		return Constraint{Kind: KindLength, Severity: SeverityError, MinLen: min, MaxLen: max}, nil
	}
	n, err := strconv.Atoi(body)
	if err != nil || n < 0 {
		return Constraint{}, fmt.Errorf("invalid length marker %q", marker)
	}
	// A single number means exact length.
	return Constraint{Kind: KindLength, Severity: SeverityError, MinLen: n, MaxLen: n}, nil
}

// catalogDocument is the YAML catalog file layout.
type catalogDocument struct {
	Parameters    []parameterDoc             `yaml:"parameters"`
	MOClasses     []MOClass                  `yaml:"moClasses"`
	Relationships []Relationship             `yaml:"relationships"`
	CrossParams   []CrossParameterConstraint `yaml:"crossParameterConstraints"`
}

type parameterDoc struct {
	Name         string      `yaml:"name"`
	MOClass      string      `yaml:"moClass"`
	Type         string      `yaml:"type"`
	Required     bool        `yaml:"required"`
	Range        *rangeDoc   `yaml:"range"`
	Enum         []string    `yaml:"enum"`
	Pattern      string      `yaml:"pattern"`
	Length       *lengthDoc  `yaml:"length"`
	Custom       string      `yaml:"custom"`
	Default      interface{} `yaml:"default"`
	Description  string      `yaml:"description"`
	Dependencies []string    `yaml:"dependencies"`
	LDN          string      `yaml:"ldn"`
	Tags         []string    `yaml:"tags"`
	Deprecated   bool        `yaml:"deprecated"`
}

type rangeDoc struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type lengthDoc struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LoadYAML parses a YAML catalog document.
func (l *Loader) LoadYAML(r io.Reader, source string) (*Catalog, error) {
	var doc catalogDocument
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog yaml: %w", err)
	}

	cat := &Catalog{
		MOClasses:     make(map[string]*MOClass),
		Relationships: doc.Relationships,
		CrossParams:   make(map[string][]*CrossParameterConstraint),
		Source:        source,
	}

	for i := range doc.MOClasses {
		cls := doc.MOClasses[i]
		if cls.Cardinality.Kind == "" {
			cls.Cardinality.Kind = CardinalityUnbounded
		}
		cat.MOClasses[cls.Name] = &cls
	}

	for i := range doc.Parameters {
		pd := doc.Parameters[i]
		param, deps, err := l.buildParameter(pd, fmt.Sprintf("%s#%d", source, i))
		if err != nil {
			l.logger.Warn().Err(err).
				Str("source", source).
				Str("parameter", pd.Name).
				Msg("Skipping malformed catalog entry")
			continue
		}
		cat.Parameters = append(cat.Parameters, param)
		registerHierarchy(cat, param.HierarchyPath)
		for _, dep := range deps {
			cat.CrossParams[dep.ID] = append(cat.CrossParams[dep.ID], dep)
		}
	}

	for i := range doc.CrossParams {
		cpc := doc.CrossParams[i]
		if cpc.Type == "" {
			cpc.Type = CrossParamExpression
		}
		if cpc.Severity == "" {
			cpc.Severity = SeverityError
		}
		cat.CrossParams[cpc.ID] = append(cat.CrossParams[cpc.ID], &cpc)
	}

	if err := cat.index(); err != nil {
		return nil, err
	}
	return cat, nil
}

// buildParameter converts a YAML parameter document into the resolved form.
func (l *Loader) buildParameter(pd parameterDoc, provenance string) (*Parameter, []*CrossParameterConstraint, error) {
	if pd.Name == "" {
		return nil, nil, fmt.Errorf("parameter name is empty")
	}

	dataType := ParseDataType(pd.Type)
	var constraints []Constraint
	if pd.Required {
		constraints = append(constraints, Constraint{Kind: KindRequired, Severity: SeverityError})
	}
	if pd.Range != nil {
		if pd.Range.Min > pd.Range.Max {
			return nil, nil, fmt.Errorf("range min %g greater than max %g", pd.Range.Min, pd.Range.Max)
		}
		constraints = append(constraints, Constraint{Kind: KindRange, Severity: SeverityError, Min: pd.Range.Min, Max: pd.Range.Max})
	}
	if len(pd.Enum) > 0 {
		constraints = append(constraints, Constraint{Kind: KindEnum, Severity: SeverityError, Values: pd.Enum})
	}
	if pd.Pattern != "" {
		re, err := regexp.Compile(pd.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid pattern %q: %w", pd.Pattern, err)
		}
		constraints = append(constraints, Constraint{Kind: KindPattern, Severity: SeverityError, Pattern: pd.Pattern, Regex: re})
	}
	if pd.Length != nil {
		if pd.Length.Max > 0 && pd.Length.Min > pd.Length.Max {
			return nil, nil, fmt.Errorf("length min %d greater than max %d", pd.Length.Min, pd.Length.Max)
		}
		constraints = append(constraints, Constraint{Kind: KindLength, Severity: SeverityError, MinLen: pd.Length.Min, MaxLen: pd.Length.Max})
	}
	if pd.Custom != "" {
		constraints = append(constraints, Constraint{Kind: KindCustom, Severity: SeverityError, Validator: pd.Custom})
	}

	param := &Parameter{
		ID:            pd.Name,
		Name:          pd.Name,
		Type:          dataType,
		Constraints:   constraints,
		Default:       pd.Default,
		HierarchyPath: splitHierarchy(pd.MOClass),
		Description:   pd.Description,
		Source:        provenance,
		LDN:           pd.LDN,
		Tags:          pd.Tags,
		Deprecated:    pd.Deprecated,
	}

	var deps []*CrossParameterConstraint
	for _, token := range pd.Dependencies {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		deps = append(deps, &CrossParameterConstraint{
			ID:          fmt.Sprintf("%s->%s", pd.Name, token),
			Type:        CrossParamDependency,
			Parameters:  []string{pd.Name, token},
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("%s is expected when %s is configured", token, pd.Name),
		})
	}

	return param, deps, nil
}

// registerHierarchy ensures every class on a parameter's hierarchy path
// exists in the class map, linking parent and child names. Classes
// declared explicitly (YAML) keep their cardinality; classes discovered
// from dotted qualifiers default to unbounded.
func registerHierarchy(cat *Catalog, path []string) {
	for i, name := range path {
		cls, ok := cat.MOClasses[name]
		if !ok {
			cls = &MOClass{
				Name:        name,
				Cardinality: Cardinality{Kind: CardinalityUnbounded},
			}
			cat.MOClasses[name] = cls
		}
		if i > 0 && cls.Parent == "" {
			cls.Parent = path[i-1]
		}
		if i < len(path)-1 {
			child := path[i+1]
			if !containsString(cls.Children, child) {
				cls.Children = append(cls.Children, child)
			}
		}
	}
}

func splitHierarchy(qualifier string) []string {
	if strings.TrimSpace(qualifier) == "" {
		return nil
	}
	parts := strings.Split(qualifier, ".")
	path := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			path = append(path, p)
		}
	}
	return path
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func coerceDefault(raw string, dataType DataType) interface{} {
	switch dataType {
	case TypeInteger:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	case TypeFloat:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case TypeBoolean:
		if v, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
			return v
		}
	}
	return raw
}

func isTruthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1", "deprecated":
		return true
	default:
		return false
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
