package store

import (
	"context"
	"time"

	"github.com/automata-dev/automata/pkg/schema"
)

// WorkflowFilter narrows ListWorkflows.
type WorkflowFilter struct {
	OwnerID     string
	EnabledOnly bool
	Limit       int
	Offset      int
}

// ExecutionRecord is one persisted run outcome, append-only.
type ExecutionRecord struct {
	ExecutionID string
	WorkflowID  string
	OwnerID     string
	Outcome     schema.ExecutionOutcome
}

// Store is the persistence boundary: workflow definitions, execution
// history, per-user trigger flags and the activity event log. All methods
// are single round trips; callers never hold a lock across a call.
type Store interface {
	PutWorkflow(ctx context.Context, wf *schema.WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error)
	SetWorkflowEnabled(ctx context.Context, id string, enabled bool) error
	DeleteWorkflow(ctx context.Context, id string) error

	RecordExecution(ctx context.Context, rec *ExecutionRecord) error
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]*ExecutionRecord, error)

	GetFlag(ctx context.Context, userID, key string) (bool, error)
	SetFlag(ctx context.Context, userID, key string, value bool, ttl time.Duration) error

	RecordEvent(ctx context.Context, userID string, event schema.ActivityEvent) error
	GetRecentEvents(ctx context.Context, userID string, since time.Time) ([]schema.ActivityEvent, error)

	Close() error
}
