package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/automata-dev/automata/internal/connectors"
	"github.com/automata-dev/automata/internal/expressions"
	"github.com/automata-dev/automata/internal/logging"
	"github.com/automata-dev/automata/internal/transform"
	"github.com/automata-dev/automata/pkg/schema"
)

// Options tunes an Engine. Zero values fall back to sane defaults.
type Options struct {
	// ActionTimeout bounds a single connector invocation. Zero disables it.
	ActionTimeout time.Duration
	// ParallelLimit caps concurrent branches of a parallel block.
	// Zero means unbounded.
	ParallelLimit int64
	Observer      Observer
	Logger        *slog.Logger
}

// Engine runs workflow definitions end to end: initialization steps, then
// the logic list, producing an ExecutionOutcome. One Engine serves many
// concurrent executions; per-run state lives in the ExecutionContext.
type Engine struct {
	executor    *Executor
	resolver    *expressions.Resolver
	transformer *transform.Transformer
	router      connectors.QueryRouter
	observer    Observer
	logger      *slog.Logger
}

// New assembles an engine over the given connector registry, credential
// provider and model query router. router may be nil when no model-backed
// steps are expected; those steps then fail individually.
func New(registry connectors.Registry, creds connectors.CredentialProvider, router connectors.QueryRouter, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = &LogObserver{Logger: logger}
	}

	engines := expressions.NewEngineSet()
	resolver := expressions.NewResolver(engines, logger)
	conditions := expressions.NewConditionEvaluator(resolver)
	dispatcher := NewDispatcher(registry, creds, resolver, opts.ActionTimeout, observer)
	executor := NewExecutor(resolver, conditions, dispatcher, observer, logger, opts.ParallelLimit)

	return &Engine{
		executor:    executor,
		resolver:    resolver,
		transformer: transform.New(router, logger),
		router:      router,
		observer:    observer,
		logger:      logger,
	}
}

// Run executes one workflow against a trigger snapshot. It never panics
// across the API boundary; every failure lands in the outcome.
func (e *Engine) Run(ctx context.Context, wf *schema.WorkflowDefinition, triggerData map[string]any, userID string) *schema.ExecutionOutcome {
	executionID := uuid.NewString()
	ctx = logging.WithIDs(ctx, wf.ID, executionID, userID)

	outcome := &schema.ExecutionOutcome{
		ExecutionID: executionID,
		StartedAt:   time.Now().UTC(),
	}
	defer func() {
		now := time.Now().UTC()
		outcome.CompletedAt = &now
		e.observer.ExecutionFinished(ctx, outcome)
	}()

	ectx := NewExecutionContext(userID, triggerData)
	e.runInitSteps(ctx, wf.Initialization, ectx)

	pass, err := e.executor.Run(ctx, wf.Logic, ectx)
	outcome.Results = ectx.Results
	outcome.Variables = ectx.Variables
	if err != nil {
		if errors.Is(err, context.Canceled) || isCode(err, schema.ErrCodeCancelled) {
			outcome.Cancelled = true
			outcome.Error = "execution cancelled"
			return outcome
		}
		outcome.Error = err.Error()
		e.logger.ErrorContext(ctx, "execution failed", "error", err)
		return outcome
	}

	outcome.Success = true
	if pass.returned {
		outcome.FinalResult = pass.returnValue
	} else {
		outcome.FinalResult = pass.last
	}
	return outcome
}

// runInitSteps seeds context variables. Each step is individually caught;
// a failing step logs and leaves its variable unset rather than aborting
// the run.
func (e *Engine) runInitSteps(ctx context.Context, steps []schema.InitStep, ectx *ExecutionContext) {
	for i := range steps {
		step := &steps[i]
		if step.Variable == "" {
			e.logger.WarnContext(ctx, "initialization step without variable", "kind", string(step.Kind))
			continue
		}
		value, err := e.runInitStep(ctx, step, ectx)
		if err != nil {
			e.logger.WarnContext(ctx, "initialization step failed",
				"kind", string(step.Kind), "variable", step.Variable, "error", err)
			continue
		}
		if expressions.IsUndefined(value) {
			e.logger.DebugContext(ctx, "initialization path missing",
				"variable", step.Variable, "path", step.Path)
			continue
		}
		ectx.Variables[step.Variable] = value
	}
}

func (e *Engine) runInitStep(ctx context.Context, step *schema.InitStep, ectx *ExecutionContext) (any, error) {
	switch step.Kind {
	case schema.InitSet:
		return step.Literal, nil

	case schema.InitFromTrigger:
		return expressions.LookupPath(ectx.TriggerData, step.Path), nil

	case schema.InitTransform:
		if step.Transform == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "transform step without a transformation")
		}
		var input any
		if step.Input != nil {
			resolved, err := e.resolver.Resolve(ctx, *step.Input, ectx.Scope())
			if err != nil {
				return nil, err
			}
			input = resolved
		}
		return e.transformer.Apply(ctx, input, *step.Transform, ectx.Scope())

	case schema.InitModelQuery:
		if e.router == nil {
			return nil, schema.NewError(schema.ErrCodeUnknownService, "no model query router configured")
		}
		prompt := expressions.RenderTemplate(step.Prompt, ectx.Scope())
		res, err := e.router.Query(ctx, prompt, "")
		if err != nil {
			return nil, err
		}
		return res.Content, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown initialization step kind %q", string(step.Kind))
	}
}

func isCode(err error, code string) bool {
	var engineErr *schema.EngineError
	return errors.As(err, &engineErr) && engineErr.Code == code
}
