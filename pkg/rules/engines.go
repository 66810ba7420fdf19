package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine names accepted in trigger entries.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// Engines resolves an engine name to an Evaluator and logs every evaluation.
// Evaluators are constructed lazily and share one program cache.
type Engines struct {
	mu         sync.Mutex
	evaluators map[string]Evaluator
	cache      ProgramCache
	registry   *FunctionRegistry
	fallback   string
	logger     *zap.Logger
}

// EnginesOption configures Engines.
type EnginesOption func(*Engines)

// WithCache overrides the shared program cache.
func WithCache(cache ProgramCache) EnginesOption {
	return func(e *Engines) {
		if cache != nil {
			e.cache = cache
		}
	}
}

// WithFunctions exposes registry to every engine.
func WithFunctions(registry *FunctionRegistry) EnginesOption {
	return func(e *Engines) {
		e.registry = registry
	}
}

// WithDefaultEngine sets the engine used for entries that name none.
func WithDefaultEngine(engine string) EnginesOption {
	return func(e *Engines) {
		if engine = strings.ToLower(strings.TrimSpace(engine)); engine != "" {
			e.fallback = engine
		}
	}
}

// WithEvaluator registers a custom evaluator under engine.
func WithEvaluator(engine string, evaluator Evaluator) EnginesOption {
	return func(e *Engines) {
		if evaluator != nil {
			e.evaluators[strings.ToLower(strings.TrimSpace(engine))] = evaluator
		}
	}
}

// WithLogger sets the evaluation logger.
func WithLogger(logger *zap.Logger) EnginesOption {
	return func(e *Engines) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngines builds a resolver with the storefront helper functions loaded.
func NewEngines(opts ...EnginesOption) *Engines {
	e := &Engines{
		evaluators: map[string]Evaluator{},
		cache:      NewMemoryCache(),
		registry:   StorefrontFunctions(),
		fallback:   EngineExpr,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Lookup returns the evaluator for engine; "" selects the default engine.
func (e *Engines) Lookup(engine string) (Evaluator, error) {
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		name = e.fallback
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if evaluator, ok := e.evaluators[name]; ok {
		return evaluator, nil
	}

	var evaluator Evaluator
	switch name {
	case EngineExpr:
		evaluator = NewExprEvaluator(ExprWithProgramCache(e.cache), ExprWithFunctionRegistry(e.registry))
	case EngineCEL:
		evaluator = NewCELEvaluator(CELWithProgramCache(e.cache), CELWithFunctionRegistry(e.registry))
	case EngineJS:
		if jsAvailable() {
			evaluator = NewJSEvaluator(JSWithProgramCache(e.cache), JSWithFunctionRegistry(e.registry))
		}
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	e.evaluators[name] = evaluator
	return evaluator, nil
}

// Test evaluates expr with engine and reports whether the result is truthy.
func (e *Engines) Test(ctx RuleContext, engine, expr string) (bool, error) {
	evaluator, err := e.Lookup(engine)
	if err != nil {
		e.logger.Warn("rules: engine unavailable", zap.String("engine", engine), zap.Error(err))
		return false, err
	}

	start := time.Now()
	value, err := evaluator.Evaluate(ctx, expr)
	fields := []zap.Field{
		zap.String("engine", engine),
		zap.String("expr", expr),
		zap.String("path", ctx.label()),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		e.logger.Warn("rules: evaluation failed", append(fields, zap.Error(err))...)
		return false, err
	}
	result := Truthy(value)
	e.logger.Debug("rules: evaluated", append(fields, zap.Bool("result", result))...)
	return result, nil
}
