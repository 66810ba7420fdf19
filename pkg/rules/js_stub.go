//go:build !js_eval

package rules

// NewJSEvaluator is unavailable without the js_eval build tag.
func NewJSEvaluator(opts ...JSOption) Evaluator {
	_ = applyJSOptions(opts)
	return nil
}

func jsAvailable() bool {
	return false
}
