package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEngine is returned for an engine name with no evaluator.
	ErrUnknownEngine = errors.New("rules: unknown engine")
	// ErrEmptyCondition is returned when asked to evaluate "".
	ErrEmptyCondition = errors.New("rules: empty condition")
)

// Stage is the evaluation step that failed.
type Stage string

const (
	StageCompile Stage = "compile"
	StageRun     Stage = "run"
)

// ConditionError reports a condition that could not be evaluated.
type ConditionError struct {
	Engine    string
	Condition string
	// Page is the path the condition was evaluated for.
	Page  string
	Stage Stage
	Err   error
}

func (e *ConditionError) Error() string {
	page := e.Page
	if page == "" {
		page = "unknown"
	}
	return fmt.Sprintf("rules: %s %s %q on %s: %v", e.Engine, e.Stage, e.Condition, page, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

func emptyCondition(engine string) error {
	return &ConditionError{Engine: engine, Stage: StageCompile, Err: ErrEmptyCondition}
}

// conditionError wraps err, filling in only what an inner ConditionError
// left blank.
func conditionError(engine string, stage Stage, condition, page string, err error) error {
	if err == nil {
		return nil
	}
	var inner *ConditionError
	if errors.As(err, &inner) {
		if inner.Engine == "" {
			inner.Engine = engine
		}
		if inner.Stage == "" {
			inner.Stage = stage
		}
		if inner.Condition == "" {
			inner.Condition = condition
		}
		if inner.Page == "" {
			inner.Page = page
		}
		return inner
	}
	return &ConditionError{Engine: engine, Stage: stage, Condition: condition, Page: page, Err: err}
}
