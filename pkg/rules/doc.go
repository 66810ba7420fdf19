// Package rules evaluates trigger conditions against a store snapshot.
//
// Three engines are available: expr (github.com/expr-lang/expr, the default),
// cel (github.com/google/cel-go) and js (github.com/dop251/goja, only when
// built with the js_eval tag). Top-level snapshot keys are bound as variables
// alongside now, path, args and metadata, so a condition such as
//
//	cart.productCount > 0 && page.name == "cart"
//
// reads directly from the document.
package rules
