package rules

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func storefrontSnapshot() map[string]any {
	return map[string]any{
		"page": map[string]any{"name": "cart", "title": "CART"},
		"cart": map[string]any{
			"productCount": 3.0,
			"subTotal":     150.0,
			"total":        150.0,
			"products": map[string]any{
				"sku1": map[string]any{"quantity": 3.0, "price": 50.0},
			},
		},
	}
}

func TestExprEvaluatorReadsSnapshotKeys(t *testing.T) {
	evaluator := NewExprEvaluator()
	got, err := evaluator.Evaluate(RuleContext{Snapshot: storefrontSnapshot()}, `cart.productCount > 2 && page.name == "cart"`)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != true {
		t.Fatalf("expected true, got %#v", got)
	}
}

func TestExprEvaluatorUndefinedVariableIsNil(t *testing.T) {
	evaluator := NewExprEvaluator()
	got, err := evaluator.Evaluate(RuleContext{}, `product == nil`)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != true {
		t.Fatalf("expected missing key to be nil, got %#v", got)
	}
}

func TestExprEvaluatorUsesCacheAndFunctions(t *testing.T) {
	cache := NewMemoryCache()
	evaluator := NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(StorefrontFunctions()))

	for i := 0; i < 2; i++ {
		got, err := evaluator.Evaluate(RuleContext{Snapshot: storefrontSnapshot()}, `inCart(cart, "sku1") && lineCount(cart) == 1`)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got != true {
			t.Fatalf("expected true, got %#v", got)
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached program, got %d", cache.Len())
	}
}

func TestExprEvaluatorErrorsCarryMetadata(t *testing.T) {
	evaluator := NewExprEvaluator()
	_, err := evaluator.Evaluate(RuleContext{Path: "/cart"}, `cart.`)

	var condErr *ConditionError
	if !errors.As(err, &condErr) {
		t.Fatalf("expected ConditionError, got %T (%v)", err, err)
	}
	if condErr.Engine != EngineExpr || condErr.Condition != "cart." || condErr.Stage != StageCompile || condErr.Page != "/cart" {
		t.Fatalf("unexpected metadata %+v", condErr)
	}

	_, err = evaluator.Evaluate(RuleContext{}, "")
	if !errors.Is(err, ErrEmptyCondition) || !strings.HasPrefix(err.Error(), "rules: expr compile") {
		t.Fatalf("expected empty condition error, got %v", err)
	}
}

func TestCELEvaluatorCachesPerKeySet(t *testing.T) {
	cache := NewMemoryCache()
	evaluator := NewCELEvaluator(CELWithProgramCache(cache))

	got, err := evaluator.Evaluate(RuleContext{Snapshot: storefrontSnapshot()}, `cart.total >= 100.0`)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != true {
		t.Fatalf("expected true, got %#v", got)
	}

	withProduct := storefrontSnapshot()
	withProduct["product"] = map[string]any{"sku": "sku1"}
	got, err = evaluator.Evaluate(RuleContext{Snapshot: withProduct}, `cart.total >= 100.0`)
	if err != nil {
		t.Fatalf("evaluate with extra key: %v", err)
	}
	if got != true {
		t.Fatalf("expected true, got %#v", got)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected separate programs per key set, got %d", cache.Len())
	}
}

func TestCELEvaluatorCallsRegistry(t *testing.T) {
	evaluator := NewCELEvaluator(CELWithFunctionRegistry(StorefrontFunctions()))
	got, err := evaluator.Evaluate(RuleContext{Snapshot: storefrontSnapshot()}, `call("cartValue", [cart]) == 150.0`)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != true {
		t.Fatalf("expected true, got %#v", got)
	}
}

func TestCELEvaluatorKeepsFunctionErrorText(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("discount", func(...any) (any, error) {
		return nil, errors.New("discount 100% off")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	evaluator := NewCELEvaluator(CELWithFunctionRegistry(registry))

	_, err := evaluator.Evaluate(RuleContext{Path: "/cart"}, `call("discount", []) == 1`)
	if err == nil {
		t.Fatalf("expected function error")
	}
	if !strings.Contains(err.Error(), "rules: discount 100% off") {
		t.Fatalf("function error text garbled: %v", err)
	}
}

func TestCELEvaluatorUnknownVariableFails(t *testing.T) {
	evaluator := NewCELEvaluator()
	_, err := evaluator.Evaluate(RuleContext{Path: "/"}, `missing.value == 1`)
	var condErr *ConditionError
	if !errors.As(err, &condErr) || condErr.Engine != EngineCEL || condErr.Page != "/" {
		t.Fatalf("expected cel ConditionError, got %v", err)
	}
}

func TestRuleContextBindingsReserveNames(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := RuleContext{
		Snapshot: map[string]any{"path": "shadowed", "cart": map[string]any{}},
		Now:      &now,
		Path:     "/cart",
	}.withDefaults()

	env := ctx.bindings()
	if env["path"] != "/cart" {
		t.Fatalf("expected reserved path binding, got %v", env["path"])
	}
	if env["now"] != now {
		t.Fatalf("expected fixed now, got %v", env["now"])
	}
	if _, ok := env["cart"]; !ok {
		t.Fatalf("expected snapshot key bound")
	}
}

func TestEnginesLookupAndTest(t *testing.T) {
	engines := NewEngines()

	ok, err := engines.Test(RuleContext{Snapshot: storefrontSnapshot()}, "", `cart.productCount`)
	if err != nil || !ok {
		t.Fatalf("expected truthy default-engine result, got %v %v", ok, err)
	}

	ok, err = engines.Test(RuleContext{Snapshot: storefrontSnapshot()}, " CEL ", `page.name == "home"`)
	if err != nil || ok {
		t.Fatalf("expected falsy cel result, got %v %v", ok, err)
	}

	if _, err := engines.Lookup("lua"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}

	first, _ := engines.Lookup("expr")
	second, _ := engines.Lookup("")
	if first != second {
		t.Fatalf("expected default engine to reuse the expr evaluator")
	}
}

func TestEnginesCustomEvaluator(t *testing.T) {
	custom := evaluatorFunc(func(ctx RuleContext, expr string) (any, error) {
		return expr == "yes", nil
	})
	engines := NewEngines(WithEvaluator("always", custom), WithDefaultEngine("always"))

	ok, err := engines.Test(RuleContext{}, "", "yes")
	if err != nil || !ok {
		t.Fatalf("expected custom evaluator result, got %v %v", ok, err)
	}
}

type evaluatorFunc func(RuleContext, string) (any, error)

func (f evaluatorFunc) Evaluate(ctx RuleContext, expr string) (any, error) {
	return f(ctx, expr)
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		value any
		want  bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"x", true},
		{0.0, false},
		{2.5, true},
		{int64(0), false},
		{[]any{}, false},
		{[]any{1}, true},
		{map[string]any{}, false},
		{map[string]any{"a": 1}, true},
		{struct{}{}, true},
	}
	for _, tc := range cases {
		if got := Truthy(tc.value); got != tc.want {
			t.Fatalf("Truthy(%#v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("Double", func(args ...any) (any, error) { return args[0].(float64) * 2, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("double", func(...any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := registry.Register("", func(...any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected empty name to fail")
	}

	got, err := registry.Call("DOUBLE", 2.0)
	if err != nil || got != 4.0 {
		t.Fatalf("unexpected call result %v %v", got, err)
	}
	if names := registry.Names(); len(names) != 1 || names[0] != "Double" {
		t.Fatalf("expected registration spelling kept, got %v", names)
	}

	clone := registry.Clone()
	_ = clone.Register("other", func(...any) (any, error) { return nil, nil })
	if registry.Len() != 1 || clone.Len() != 2 {
		t.Fatalf("expected clone to be independent")
	}
	if _, err := registry.Call("missing"); err == nil {
		t.Fatalf("expected missing function error")
	}
}

func TestConditionErrorKeepsInnerMetadata(t *testing.T) {
	base := errors.New("compile failure")
	inner := &ConditionError{Engine: EngineExpr, Err: base}

	err := conditionError(EngineCEL, StageRun, "rule", "/checkout", inner)
	if !errors.Is(err, base) {
		t.Fatalf("expected base error to unwrap")
	}
	if inner.Engine != EngineExpr || inner.Stage != StageRun || inner.Condition != "rule" || inner.Page != "/checkout" {
		t.Fatalf("unexpected merge of metadata %+v", inner)
	}
	if conditionError(EngineExpr, StageRun, "x", "/", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
