//go:build js_eval

package rules

import (
	"fmt"

	"github.com/dop251/goja"
)

type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSEvaluator constructs an Evaluator backed by goja. Each evaluation runs
// in a fresh runtime.
func NewJSEvaluator(opts ...JSOption) Evaluator {
	cfg := applyJSOptions(opts)
	return &jsEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, emptyCondition(EngineJS)
	}
	ctx = ctx.withDefaults()
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, conditionError(EngineJS, StageCompile, expression, ctx.Path, err)
	}
	vm := goja.New()
	if err := e.inject(vm, ctx); err != nil {
		return nil, conditionError(EngineJS, StageRun, expression, ctx.Path, err)
	}
	value, err := vm.RunProgram(program)
	if err != nil {
		return nil, conditionError(EngineJS, StageRun, expression, ctx.Path, err)
	}
	return value.Export(), nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	key := cacheKey(EngineJS, expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *jsEvaluator) inject(vm *goja.Runtime, ctx RuleContext) error {
	for key, value := range ctx.bindings() {
		if err := vm.Set(key, value); err != nil {
			return err
		}
	}
	if e.registry == nil {
		return nil
	}
	if err := vm.Set("call", func(name string, arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}); err != nil {
		return err
	}
	for _, name := range e.registry.Names() {
		fn := name
		if err := vm.Set(fn, func(arguments ...any) (any, error) {
			return e.registry.Call(fn, arguments...)
		}); err != nil {
			return err
		}
	}
	return nil
}

func jsAvailable() bool {
	return true
}
