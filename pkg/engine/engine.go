package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paramguard/paramguard/pkg/catalog"
	"github.com/paramguard/paramguard/pkg/constraint"
	"github.com/paramguard/paramguard/pkg/crossparam"
	"github.com/paramguard/paramguard/pkg/diag"
	"github.com/paramguard/paramguard/pkg/hierarchy"
	"github.com/paramguard/paramguard/pkg/schema"
	"github.com/paramguard/paramguard/pkg/telemetry"
)

// Engine is the validation orchestrator. It is an explicit owned handle:
// callers construct one, initialize it, validate through it, and shut it
// down. There is no module-level engine state.
type Engine struct {
	logger zerolog.Logger
	tel    *telemetry.Telemetry
	opts   Options

	// mu guards state and the catalog-derived validators so a reload
	// swaps them atomically with respect to in-flight validations.
	mu        sync.RWMutex
	state     State
	cat       *catalog.Catalog
	processor *constraint.Processor
	cross     *crossparam.Validator
	hier      *hierarchy.Validator
	schemaV   *schema.Validator

	loader    *catalog.Loader
	customs   map[string]constraint.CustomValidator
	insight   InsightProvider
	store     PatternStore
	watcher   *catalog.Watcher
	stopWatch context.CancelFunc

	hist *history

	validations     atomic.Uint64
	invalid         atomic.Uint64
	budgetOverruns  atomic.Uint64
	paramsValidated atomic.Uint64
	execNanos       atomic.Int64
	reloads         atomic.Uint64
}

// validators is a consistent snapshot of everything one validation run
// reads. Reloads build a new snapshot; runs already holding one are
// unaffected.
type validators struct {
	cat       *catalog.Catalog
	processor *constraint.Processor
	cross     *crossparam.Validator
	hier      *hierarchy.Validator
	schemaV   *schema.Validator
}

// New creates an engine in the uninitialized state.
func New(logger zerolog.Logger, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		logger:  logger.With().Str("component", "validation-engine").Logger(),
		opts:    opts,
		state:   StateUninitialized,
		loader:  catalog.NewLoader(logger),
		customs: make(map[string]constraint.CustomValidator),
		insight: NoopInsightProvider{},
		hist:    newHistory(opts.HistoryLimit),
	}, nil
}

// SetTelemetry attaches a telemetry bundle. Must be called before
// Initialize.
func (e *Engine) SetTelemetry(tel *telemetry.Telemetry) {
	e.tel = tel
}

// SetInsightProvider installs the advisory enrichment provider used at
// the comprehensive level. Must be called before Initialize.
func (e *Engine) SetInsightProvider(p InsightProvider) {
	if p == nil {
		p = NoopInsightProvider{}
	}
	e.insight = p
}

// SetPatternStore installs the store completed results are persisted
// to. Must be called before Initialize.
func (e *Engine) SetPatternStore(s PatternStore) {
	e.store = s
}

// RegisterCustomValidator binds a named custom validator referenced by
// Custom constraints in the catalog. Must be called before Initialize.
func (e *Engine) RegisterCustomValidator(name string, v constraint.CustomValidator) {
	e.customs[name] = v
}

// Initialize loads the catalog, compiles the validators, and moves the
// engine to the ready state. Loading is atomic: no partial catalog is
// ever observable.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateReady {
		// Initializing an already-ready engine is a no-op.
		e.mu.Unlock()
		return nil
	}
	if e.state != StateUninitialized {
		state := e.state
		e.mu.Unlock()
		return NewConflictError(
			fmt.Sprintf("engine is %s, expected %s", state, StateUninitialized), nil,
		).WithCode(ErrCodeNotReady)
	}
	e.state = StateInitializing
	e.mu.Unlock()

	v, err := e.buildValidators()
	if err != nil {
		e.mu.Lock()
		e.state = StateUninitialized
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	e.install(v)
	e.state = StateReady
	e.mu.Unlock()

	if e.opts.WatchCatalog && e.opts.CatalogSource != "" {
		if err := e.startWatcher(); err != nil {
			e.logger.Warn().Err(err).Msg("Catalog watcher unavailable, reload on change disabled")
		}
	}

	e.logger.Info().
		Str("catalog_source", v.cat.Source).
		Int("parameters", v.cat.Len()).
		Int("mo_classes", len(v.cat.MOClasses)).
		Msg("Validation engine initialized")

	if e.tel != nil {
		e.tel.Metrics.RecordCatalogReload(true, v.cat.Len())
		_ = e.tel.Events.PublishCatalogLoaded(v.cat.Source, v.cat.Len(), len(v.cat.MOClasses))
		_ = e.tel.Events.PublishInitialized(v.cat.Source, v.cat.Len())
	}
	return nil
}

// buildValidators loads the catalog and compiles every phase validator
// against it.
func (e *Engine) buildValidators() (*validators, error) {
	cat, err := e.loader.Load(e.opts.CatalogSource)
	if err != nil {
		return nil, NewPermanentError("failed to load catalog", err).WithCode(ErrCodeCatalogLoad)
	}

	processor := constraint.NewProcessor(e.logger, e.opts.Constraint, e.customs)
	processor.Compile(cat)

	cross := crossparam.NewValidator(e.logger, e.opts.CrossParamTimeout)
	cross.CompileCatalog(cat)

	schemaV, err := schema.NewValidator(e.logger, cat)
	if err != nil {
		processor.Close()
		return nil, NewPermanentError("failed to build schema validator", err).WithCode(ErrCodeCatalogLoad)
	}

	return &validators{
		cat:       cat,
		processor: processor,
		cross:     cross,
		hier:      hierarchy.NewValidator(e.logger),
		schemaV:   schemaV,
	}, nil
}

// install swaps in a validator snapshot. Caller holds e.mu.
func (e *Engine) install(v *validators) {
	if e.processor != nil && e.processor != v.processor {
		e.processor.Close()
	}
	e.cat = v.cat
	e.processor = v.processor
	e.cross = v.cross
	e.hier = v.hier
	e.schemaV = v.schemaV
}

// snapshot returns the current validator set for one run.
func (e *Engine) snapshot() (*validators, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateReady {
		return nil, NewPermanentError(
			fmt.Sprintf("engine is %s, not ready", e.state), nil,
		).WithCode(ErrCodeNotReady)
	}
	return &validators{
		cat:       e.cat,
		processor: e.processor,
		cross:     e.cross,
		hier:      e.hier,
		schemaV:   e.schemaV,
	}, nil
}

// startWatcher begins watching the catalog source and reloading on
// change.
func (e *Engine) startWatcher() error {
	w, err := catalog.NewWatcher(e.logger, e.opts.CatalogSource)
	if err != nil {
		return err
	}
	e.watcher = w

	ctx, cancel := context.WithCancel(context.Background())
	e.stopWatch = cancel

	go w.Run(ctx)
	go func() {
		for range w.Changes() {
			if err := e.Reload(ctx); err != nil {
				e.logger.Warn().Err(err).Msg("Catalog reload failed, keeping previous catalog")
			}
		}
	}()
	return nil
}

// Reload rebuilds the catalog and validators from the source and swaps
// them in. In-flight validations keep the snapshot they started with.
// On failure the previous catalog stays active.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()
	if state != StateReady {
		return NewConflictError(
			fmt.Sprintf("cannot reload while engine is %s", state), nil,
		).WithCode(ErrCodeNotReady)
	}

	v, err := e.buildValidators()
	if err != nil {
		if e.tel != nil {
			e.tel.Metrics.RecordCatalogReload(false, 0)
		}
		return NewTransientError("catalog reload failed", err).WithCode(ErrCodeCatalogLoad)
	}

	e.mu.Lock()
	e.install(v)
	e.mu.Unlock()
	e.reloads.Add(1)

	e.logger.Info().
		Str("catalog_source", v.cat.Source).
		Int("parameters", v.cat.Len()).
		Msg("Catalog reloaded")

	if e.tel != nil {
		e.tel.Metrics.RecordCatalogReload(true, v.cat.Len())
		_ = e.tel.Events.PublishCatalogReloaded(v.cat.Source, v.cat.Len())
	}
	return nil
}

// ValidateConfiguration validates a configuration snapshot at the
// standard level.
func (e *Engine) ValidateConfiguration(ctx context.Context, cfg map[string]interface{}) (*ValidationResult, error) {
	return e.ValidateWithContext(ctx, ValidationContext{Configuration: cfg})
}

// ValidateWithContext validates a configuration with full caller control
// over the validation context. All phases always run (subject to the
// cancel latency policy); diagnostics are unioned with duplicates on the
// (code, parameter, value, constraint) tuple removed.
func (e *Engine) ValidateWithContext(ctx context.Context, vc ValidationContext) (*ValidationResult, error) {
	v, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	if vc.ID == "" {
		vc.ID = uuid.New().String()
	}
	if vc.Timestamp.IsZero() {
		vc.Timestamp = time.Now()
	}
	if vc.Level == "" {
		vc.Level = LevelStandard
	}
	cfg := vc.Configuration

	start := time.Now()
	deadline := start.Add(e.opts.ValidationBudget)
	statsBefore := v.processor.CacheStats()

	if e.tel != nil {
		ctx = e.tel.WithContext(ctx)
		ctx = telemetry.WithValidationContext(ctx, vc.ID, string(vc.Level), len(cfg))
	}

	result := &ValidationResult{
		ID:                  vc.ID,
		ParametersValidated: len(cfg),
	}

	type phase struct {
		name string
		run  func(context.Context) []diag.Diagnostic
	}
	phases := []phase{
		{PhaseParameter, func(ctx context.Context) []diag.Diagnostic {
			return e.runParameterPhase(v, cfg)
		}},
		{PhaseCrossParameter, func(context.Context) []diag.Diagnostic {
			return v.cross.Validate(cfg, catalog.CrossParamDependency)
		}},
		{PhaseHierarchy, func(context.Context) []diag.Diagnostic {
			return v.hier.ValidateHierarchy(v.cat, cfg)
		}},
		{PhaseRelationship, func(context.Context) []diag.Diagnostic {
			return v.hier.ValidateRelationships(v.cat, cfg)
		}},
		{PhaseConditional, func(context.Context) []diag.Diagnostic {
			return v.cross.Validate(cfg, catalog.CrossParamExpression)
		}},
		{PhaseSchema, func(context.Context) []diag.Diagnostic {
			return v.schemaV.Validate(cfg)
		}},
	}

	var all []diag.Diagnostic
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			e.finish(ctx, vc, result, start, statsBefore, v)
			return nil, NewTransientError("validation cancelled", err).
				WithCode(ErrCodeCancelled).WithValidation(vc.ID)
		}
		if e.opts.LatencyPolicy == LatencyCancel && time.Now().After(deadline) {
			result.Partial = true
			break
		}

		p := p
		_ = telemetry.RecordPhase(ctx, vc.ID, p.name, func(ctx context.Context) error {
			all = append(all, p.run(ctx)...)
			return nil
		})
	}

	all = diag.Dedup(all)
	result.Errors, result.Warnings = diag.Partition(all)
	sortDiags(result.Errors)
	sortDiags(result.Warnings)
	result.Valid = len(result.Errors) == 0

	// Advisory enrichment never affects validity and never fails the run.
	if vc.Level == LevelComprehensive && !result.Partial {
		insights, err := e.insight.Enrich(ctx, cfg, all)
		if err != nil {
			e.logger.Warn().Err(err).Str("validation_id", vc.ID).
				Msg("Insight provider failed, continuing without insights")
		} else {
			result.Insights = insights
		}
	}

	e.finish(ctx, vc, result, start, statsBefore, v)
	return result, nil
}

// finish stamps timing and cache figures on the result and records
// bookkeeping: counters, history, telemetry, and pattern persistence.
func (e *Engine) finish(ctx context.Context, vc ValidationContext, result *ValidationResult, start time.Time, before constraint.CacheStats, v *validators) {
	result.ExecutionTime = time.Since(start)
	result.Timestamp = time.Now()
	result.CacheHitRate = hitRateDelta(before, v.processor.CacheStats())
	result.BudgetExceeded = result.ExecutionTime > e.opts.ValidationBudget

	e.validations.Add(1)
	if !result.Valid {
		e.invalid.Add(1)
	}
	e.paramsValidated.Add(uint64(result.ParametersValidated))
	e.execNanos.Add(int64(result.ExecutionTime))
	if result.BudgetExceeded {
		e.budgetOverruns.Add(1)
	}

	e.hist.add(result)

	e.logger.Debug().
		Str("validation_id", result.ID).
		Bool("valid", result.Valid).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Dur("execution_time", result.ExecutionTime).
		Msg("Validation completed")

	if e.tel != nil {
		after := v.processor.CacheStats()
		e.tel.Metrics.RecordCacheAccesses(after.Hits-before.Hits, after.Misses-before.Misses)
		e.tel.Metrics.RecordCacheEvictions(after.Evictions - before.Evictions)
		for _, d := range result.Errors {
			e.tel.Metrics.RecordDiagnostic(string(d.Severity), string(d.Code))
		}
		for _, d := range result.Warnings {
			e.tel.Metrics.RecordDiagnostic(string(d.Severity), string(d.Code))
		}
		if result.BudgetExceeded {
			e.tel.Metrics.RecordBudgetExceeded()
			_ = e.tel.Events.PublishBudgetExceeded(result.ID, result.ExecutionTime, e.opts.ValidationBudget)
		}
		e.tel.Metrics.SetHistorySize(e.hist.size())
		telemetry.EndValidationContext(ctx, result.ID, string(vc.Level),
			result.Valid, len(result.Errors), len(result.Warnings), result.ParametersValidated, nil)
	}

	if e.store != nil {
		if err := e.store.SaveResult(ctx, result); err != nil {
			e.logger.Warn().Err(err).Str("validation_id", result.ID).
				Msg("Failed to persist validation result")
		}
	}
}

// parameterTask is one unit of parameter-phase work.
type parameterTask struct {
	name   string
	value  interface{}
	param  *catalog.Parameter // nil when the name is unknown
	absent bool
}

// runParameterPhase validates every configured value against its own
// constraints, reports configuration keys the catalog does not know,
// and checks required parameters that are absent from the configuration.
// Tasks are dispatched to a bounded worker pool; results are unioned, so
// worker scheduling never affects the diagnostic set.
func (e *Engine) runParameterPhase(v *validators, cfg map[string]interface{}) []diag.Diagnostic {
	tasks := make([]parameterTask, 0, len(cfg))
	for name, value := range cfg {
		param, ok := v.cat.Lookup(name)
		if !ok {
			tasks = append(tasks, parameterTask{name: name, value: value})
			continue
		}
		tasks = append(tasks, parameterTask{name: name, value: value, param: param})
	}

	// Required parameters missing from the configuration still get their
	// Required constraint evaluated.
	for _, param := range v.cat.Parameters {
		if _, configured := cfg[param.Name]; configured {
			continue
		}
		if hasRequired(param) {
			tasks = append(tasks, parameterTask{name: param.Name, param: param, absent: true})
		}
	}

	if len(tasks) == 0 {
		return nil
	}

	workers := e.opts.Workers
	if len(tasks) < workers {
		workers = len(tasks)
	}

	queue := make(chan parameterTask, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	results := make(chan []diag.Diagnostic, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				results <- e.checkParameter(v, t)
			}
		}()
	}
	wg.Wait()
	close(results)

	var diags []diag.Diagnostic
	for ds := range results {
		diags = append(diags, ds...)
	}
	return diags
}

// checkParameter validates one task.
func (e *Engine) checkParameter(v *validators, t parameterTask) []diag.Diagnostic {
	if t.param == nil {
		return []diag.Diagnostic{
			diag.Error(diag.CodeUnknownParameter, t.name, "",
				fmt.Sprintf("parameter %s is not defined in the catalog", t.name)).WithValue(t.value),
		}
	}
	if t.absent {
		return v.processor.ValidateParameter(t.param, constraint.Absent)
	}
	return v.processor.ValidateParameter(t.param, t.value)
}

// GetMetrics returns a snapshot of the engine counters.
func (e *Engine) GetMetrics() Metrics {
	e.mu.RLock()
	state := e.state
	cat := e.cat
	e.mu.RUnlock()

	m := Metrics{
		State:               state,
		Validations:         e.validations.Load(),
		Invalid:             e.invalid.Load(),
		BudgetExceeded:      e.budgetOverruns.Load(),
		ParametersValidated: e.paramsValidated.Load(),
		CatalogReloads:      e.reloads.Load(),
		HistorySize:         e.hist.size(),
	}
	if cat != nil {
		m.CatalogParameters = cat.Len()
		m.CatalogSource = cat.Source
	}
	if n := m.Validations; n > 0 {
		m.AverageExecutionTime = time.Duration(e.execNanos.Load() / int64(n))
	}
	return m
}

// GetCacheStatistics returns the constraint-cache counters.
func (e *Engine) GetCacheStatistics() constraint.CacheStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.processor == nil {
		return constraint.CacheStats{}
	}
	return e.processor.CacheStats()
}

// ClearCache drops every cached constraint result. The next validations
// recompute; diagnostics are unchanged.
func (e *Engine) ClearCache() {
	e.mu.RLock()
	processor := e.processor
	e.mu.RUnlock()
	if processor == nil {
		return
	}

	entries := processor.CacheStats().Entries
	processor.ClearCache()
	if e.tel != nil {
		_ = e.tel.Events.PublishCacheCleared(entries)
	}
}

// History returns the retained validation results, most recent first.
func (e *Engine) History() []*ValidationResult {
	return e.hist.recent()
}

// Catalog returns the currently loaded catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cat
}

// Shutdown stops the watcher, closes the cache and pattern store, and
// moves the engine to the shut_down state. Shutdown is idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateShutDown || e.state == StateShuttingDown {
		e.mu.Unlock()
		return nil
	}
	e.state = StateShuttingDown
	e.mu.Unlock()

	if e.stopWatch != nil {
		e.stopWatch()
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to close catalog watcher")
		}
	}

	e.mu.Lock()
	if e.processor != nil {
		e.processor.Close()
	}
	e.state = StateShutDown
	e.mu.Unlock()

	var storeErr error
	if e.store != nil {
		storeErr = e.store.Close()
	}

	e.logger.Info().Uint64("validations", e.validations.Load()).Msg("Validation engine shut down")
	if e.tel != nil {
		_ = e.tel.Events.PublishShutdown(e.validations.Load())
	}

	if storeErr != nil {
		return NewPermanentError("failed to close pattern store", storeErr).WithCode(ErrCodeShutdown)
	}
	return nil
}

// hasRequired reports whether the parameter carries a Required
// constraint.
func hasRequired(p *catalog.Parameter) bool {
	for _, c := range p.Constraints {
		if c.Kind == catalog.KindRequired {
			return true
		}
	}
	return false
}

// hitRateDelta computes the cache hit rate over one run from two
// counter snapshots.
func hitRateDelta(before, after constraint.CacheStats) float64 {
	hits := after.Hits - before.Hits
	misses := after.Misses - before.Misses
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}

// sortDiags orders diagnostics by their identity key so equal runs
// produce identical output ordering.
func sortDiags(diags []diag.Diagnostic) {
	sort.Slice(diags, func(i, j int) bool {
		return diags[i].Key() < diags[j].Key()
	})
}
