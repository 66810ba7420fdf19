package rules

type jsConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSOption configures the JS evaluator.
type JSOption func(*jsConfig)

// JSWithProgramCache applies a ProgramCache to the JS evaluator.
func JSWithProgramCache(cache ProgramCache) JSOption {
	return func(cfg *jsConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry applies a FunctionRegistry to the JS evaluator.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSOption {
	return func(cfg *jsConfig) {
		if registry == nil {
			return
		}
		cfg.registry = registry.Clone()
	}
}

func applyJSOptions(opts []JSOption) jsConfig {
	cfg := jsConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
