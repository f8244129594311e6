package engine

import (
	"time"

	"github.com/automata-dev/automata/internal/expressions"
	"github.com/automata-dev/automata/pkg/schema"
)

// ExecutionContext is the mutable state of one workflow run: the trigger
// snapshot, the variables map and the append-only results map. It is owned
// exclusively by one execution and never shared across concurrent executions.
type ExecutionContext struct {
	UserID      string
	TriggerData map[string]any
	Variables   map[string]any
	Results     map[string]any
	LastError   *schema.LastError
}

// NewExecutionContext builds a fresh context for one run.
func NewExecutionContext(userID string, triggerData map[string]any) *ExecutionContext {
	if triggerData == nil {
		triggerData = map[string]any{}
	}
	return &ExecutionContext{
		UserID:      userID,
		TriggerData: triggerData,
		Variables:   make(map[string]any),
		Results:     make(map[string]any),
	}
}

// Scope returns the read view handed to the resolver and condition
// evaluator. The maps are shared, not copied: the executor is single-threaded
// within one pass, and parallel branches only read.
func (c *ExecutionContext) Scope() *expressions.Scope {
	return &expressions.Scope{
		UserID:    c.UserID,
		Trigger:   c.TriggerData,
		Variables: c.Variables,
		Results:   c.Results,
	}
}

// Derive creates the child context handed to a loop iteration: a shallow copy
// of the variables map sharing the trigger snapshot and the results map.
// Loop bodies run sequentially, so sharing results is safe; variable writes
// stay isolated until MergeInto.
func (c *ExecutionContext) Derive() *ExecutionContext {
	vars := make(map[string]any, len(c.Variables))
	for k, v := range c.Variables {
		vars[k] = v
	}
	return &ExecutionContext{
		UserID:      c.UserID,
		TriggerData: c.TriggerData,
		Variables:   vars,
		Results:     c.Results,
		LastError:   c.LastError,
	}
}

// MergeInto folds the derived context's variable writes back into the parent
// after an iteration completes. Later iterations see earlier iterations'
// merged variables.
func (c *ExecutionContext) MergeInto(parent *ExecutionContext) {
	for k, v := range c.Variables {
		parent.Variables[k] = v
	}
	if c.LastError != nil {
		parent.LastError = c.LastError
	}
}

// SetResult writes a block result under name into both the results map and
// the variables map, making results addressable as variables from that point
// forward.
func (c *ExecutionContext) SetResult(name string, value any) {
	c.Results[name] = value
	c.Variables[name] = value
}

// RecordError captures a block failure for caller-facing reporting.
func (c *ExecutionContext) RecordError(kind schema.BlockKind, err error) {
	c.LastError = &schema.LastError{
		Message:   err.Error(),
		BlockKind: string(kind),
		Timestamp: time.Now().UTC(),
	}
}
