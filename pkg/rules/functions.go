package rules

import "fmt"

// StorefrontFunctions returns a registry with helpers for cart conditions:
//
//	inCart(cart, id)     true when cart.products has a line for id
//	lineCount(cart)      number of distinct lines
//	cartValue(cart)      cart total, 0 when absent
func StorefrontFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("inCart", func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("inCart expects 2 arguments, got %d", len(args))
		}
		id, _ := args[1].(string)
		_, ok := cartProducts(args[0])[id]
		return ok, nil
	})
	_ = registry.Register("lineCount", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("lineCount expects 1 argument, got %d", len(args))
		}
		return float64(len(cartProducts(args[0]))), nil
	})
	_ = registry.Register("cartValue", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("cartValue expects 1 argument, got %d", len(args))
		}
		cart, _ := args[0].(map[string]any)
		total, _ := cart["total"].(float64)
		return total, nil
	})
	return registry
}

func cartProducts(value any) map[string]any {
	cart, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	products, _ := cart["products"].(map[string]any)
	return products
}
