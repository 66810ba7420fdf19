package rules

import (
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"
	functions "github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELOption configures the CEL evaluator.
type CELOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

type celProgram struct {
	env     *celgo.Env
	program celgo.Program
}

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go. Every snapshot key
// is declared as a dyn variable, so the compiled program depends on the key
// set as well as on the expression.
func NewCELEvaluator(opts ...CELOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, emptyCondition(EngineCEL)
	}
	ctx = ctx.withDefaults()
	bindings := ctx.bindings()
	program, err := e.loadOrCompile(expression, bindings)
	if err != nil {
		return nil, conditionError(EngineCEL, StageCompile, expression, ctx.Path, err)
	}
	out, _, err := program.program.Eval(bindings)
	if err != nil {
		return nil, conditionError(EngineCEL, StageRun, expression, ctx.Path, err)
	}
	return out.Value(), nil
}

func (e *celEvaluator) loadOrCompile(expression string, bindings map[string]any) (*celProgram, error) {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	key := cacheKey(EngineCEL, expression+"\x00"+strings.Join(names, ","))

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv(names)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	bundle := &celProgram{env: env, program: prg}
	if e.cache != nil {
		e.cache.Set(key, bundle)
	}
	return bundle, nil
}

func (e *celEvaluator) buildEnv(names []string) (*celgo.Env, error) {
	opts := make([]celgo.EnvOption, 0, len(names)+1)
	for _, name := range names {
		if name == "now" {
			opts = append(opts, celgo.Variable(name, celgo.TimestampType))
			continue
		}
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	if e.registry != nil {
		opts = append(opts, celgo.Function("call", celgo.Overload(
			"call_string_list",
			[]*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)},
			celgo.DynType,
			celgo.BinaryBinding(e.callBinding()),
		)))
	}
	return celgo.NewEnv(opts...)
}

// callBinding exposes the registry as call("name", [args...]).
func (e *celEvaluator) callBinding() functions.BinaryOp {
	return func(nameVal, argsVal ref.Val) ref.Val {
		name, ok := nameVal.Value().(string)
		if !ok {
			return types.NewErr("rules: call name must be string")
		}
		var args []any
		if list, ok := argsVal.(interface {
			Size() ref.Val
			Get(ref.Val) ref.Val
		}); ok {
			size, _ := list.Size().Value().(int64)
			for i := int64(0); i < size; i++ {
				args = append(args, list.Get(types.Int(i)).Value())
			}
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("rules: %v", err)
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}
