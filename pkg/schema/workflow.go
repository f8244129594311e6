package schema

import "time"

// WorkflowDefinition is the JSON-serializable automation format: a trigger
// plus an ordered logic-block program. Immutable once loaded for a single
// execution; edits create a new version.
type WorkflowDefinition struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Name           string         `json:"name,omitempty"`
	Version        int            `json:"version,omitempty"`
	Trigger        *TriggerSpec   `json:"trigger,omitempty"`
	Initialization []InitStep     `json:"initialization,omitempty"`
	Logic          []LogicBlock   `json:"logic"`
	Enabled        bool           `json:"enabled"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// BlockKind enumerates the kinds of logic blocks.
type BlockKind string

const (
	BlockAction      BlockKind = "action"
	BlockConditional BlockKind = "conditional"
	BlockLoop        BlockKind = "loop"
	BlockParallel    BlockKind = "parallel"
	BlockSetVariable BlockKind = "set_variable"
	BlockReturn      BlockKind = "return"
)

// ErrorPolicy controls how a block error is routed.
type ErrorPolicy string

const (
	ErrorPropagate   ErrorPolicy = "propagate"
	ErrorContinue    ErrorPolicy = "continue"
	ErrorReturnEarly ErrorPolicy = "return_early"
)

// LogicBlock is one instruction in a workflow's logic list. Every kind shares
// the optional gate condition, result name, error policy and terminal flag.
type LogicBlock struct {
	Kind       BlockKind   `json:"kind"`
	Condition  *Condition  `json:"condition,omitempty"`
	ResultName string      `json:"result_name,omitempty"`
	OnError    ErrorPolicy `json:"on_error,omitempty"` // propagate (default) | continue | return_early
	Terminal   bool        `json:"terminal,omitempty"`

	// action
	Action *ActionSpec `json:"action,omitempty"`

	// conditional
	If   *Condition   `json:"if,omitempty"`
	Then []LogicBlock `json:"then,omitempty"`
	Else []LogicBlock `json:"else,omitempty"`

	// loop (sequential; iteration N may depend on N-1's writes)
	Items    *Value       `json:"items,omitempty"`
	ItemVar  string       `json:"item_var,omitempty"`
	IndexVar string       `json:"index_var,omitempty"`
	Body     []LogicBlock `json:"body,omitempty"`

	// parallel
	Actions []ActionSpec `json:"actions,omitempty"`

	// set_variable / return
	Name  string `json:"name,omitempty"`
	Value *Value `json:"value,omitempty"`
}

// ActionSpec names one external connector invocation.
type ActionSpec struct {
	ServiceID  string           `json:"service_id"`
	ActionType string           `json:"action_type"`
	Params     map[string]Value `json:"params,omitempty"`
}

// InitStepKind enumerates initialization step kinds.
type InitStepKind string

const (
	InitSet         InitStepKind = "set"
	InitFromTrigger InitStepKind = "from_trigger"
	InitTransform   InitStepKind = "transform"
	InitModelQuery  InitStepKind = "model_query"
)

// InitStep seeds one context variable before the logic list runs.
// Failures are individually caught and logged, never abort the run.
type InitStep struct {
	Kind     InitStepKind `json:"kind"`
	Variable string       `json:"variable"`

	// set
	Literal any `json:"value,omitempty"`

	// from_trigger (dotted path into the trigger snapshot)
	Path string `json:"path,omitempty"`

	// transform (input resolved first, then the transformation applied)
	Input     *Value         `json:"input,omitempty"`
	Transform *TransformSpec `json:"transform,omitempty"`

	// model_query (prompt template rendered against the context)
	Prompt string `json:"prompt,omitempty"`
}

// ExecutionOutcome is the result of one workflow run.
type ExecutionOutcome struct {
	ExecutionID string         `json:"execution_id"`
	Success     bool           `json:"success"`
	Cancelled   bool           `json:"cancelled,omitempty"`
	Results     map[string]any `json:"results,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	FinalResult any            `json:"final_result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// LastError carries enough structure for callers to present a specific
// automation-step failure rather than a generic error.
type LastError struct {
	Message   string    `json:"message"`
	BlockKind string    `json:"block_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
