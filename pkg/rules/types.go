package rules

import (
	"strings"
	"time"
)

// RuleContext carries the inputs of one evaluation.
type RuleContext struct {
	Snapshot map[string]any
	Now      *time.Time
	// Path is the page path the condition is evaluated for.
	Path     string
	Args     map[string]any
	Metadata map[string]any
}

func (ctx RuleContext) withDefaults() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	if ctx.Now == nil {
		return time.Now()
	}
	return *ctx.Now
}

func (ctx RuleContext) label() string {
	if strings.TrimSpace(ctx.Path) == "" {
		return "unknown"
	}
	return ctx.Path
}

// bindings returns the variables shared by every engine. Snapshot keys never
// shadow the reserved names.
func (ctx RuleContext) bindings() map[string]any {
	env := make(map[string]any, len(ctx.Snapshot)+4)
	for key, value := range ctx.Snapshot {
		env[key] = value
	}
	env["now"] = ctx.timestamp()
	env["path"] = ctx.Path
	env["args"] = ctx.Args
	env["metadata"] = ctx.Metadata
	return env
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
