package rules

import (
	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprOption configures the expr evaluator.
type ExprOption func(*exprEvaluator)

// ExprWithProgramCache shares compiled programs through cache.
func ExprWithProgramCache(cache ProgramCache) ExprOption {
	return func(e *exprEvaluator) { e.cache = cache }
}

// ExprWithFunctionRegistry exposes the registry's functions by name and
// through call(name, args...).
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprOption {
	return func(e *exprEvaluator) {
		if registry != nil {
			e.functions = registry.Clone()
		}
	}
}

type exprEvaluator struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// NewExprEvaluator returns the default condition engine. Unknown
// identifiers evaluate to nil, so `coupon != nil` works on documents that
// have no coupon section.
func NewExprEvaluator(opts ...ExprOption) Evaluator {
	e := &exprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *exprEvaluator) Evaluate(ctx RuleContext, condition string) (any, error) {
	if condition == "" {
		return nil, emptyCondition(EngineExpr)
	}
	ctx = ctx.withDefaults()

	program, err := e.program(condition)
	if err != nil {
		return nil, conditionError(EngineExpr, StageCompile, condition, ctx.Path, err)
	}
	env := ctx.bindings()
	if e.functions != nil {
		env["call"] = e.functions.Call
	}
	out, err := vm.Run(program, env)
	if err != nil {
		return nil, conditionError(EngineExpr, StageRun, condition, ctx.Path, err)
	}
	return out, nil
}

func (e *exprEvaluator) program(condition string) (*vm.Program, error) {
	key := cacheKey(EngineExpr, condition)
	if e.cache != nil {
		if hit, ok := e.cache.Get(key); ok {
			if program, ok := hit.(*vm.Program); ok {
				return program, nil
			}
		}
	}

	options := []exprlang.Option{exprlang.Env(map[string]any{}), exprlang.AllowUndefinedVariables()}
	if e.functions != nil {
		for _, name := range e.functions.Names() {
			fn := e.functions
			options = append(options, exprlang.Function(name, func(args ...any) (any, error) {
				return fn.Call(name, args...)
			}))
		}
	}
	program, err := exprlang.Compile(condition, options...)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func cacheKey(engine, condition string) string {
	return engine + "\x00" + condition
}
