package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/automata-dev/automata/internal/expressions"
	"github.com/automata-dev/automata/pkg/schema"
)

// maxNestingDepth bounds conditional and loop nesting so a malformed or
// adversarial definition cannot blow the stack.
const maxNestingDepth = 64

// Executor walks a logic-block list and executes each block against the
// execution context. It is stateless across runs; all mutable state lives in
// the ExecutionContext.
type Executor struct {
	resolver      *expressions.Resolver
	conditions    *expressions.ConditionEvaluator
	dispatcher    *Dispatcher
	observer      Observer
	logger        *slog.Logger
	parallelLimit int64
}

// NewExecutor wires an executor. parallelLimit caps concurrent branches of a
// parallel block; zero or negative means unbounded.
func NewExecutor(resolver *expressions.Resolver, conditions *expressions.ConditionEvaluator, dispatcher *Dispatcher, observer Observer, logger *slog.Logger, parallelLimit int64) *Executor {
	if observer == nil {
		observer = NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		resolver:      resolver,
		conditions:    conditions,
		dispatcher:    dispatcher,
		observer:      observer,
		logger:        logger,
		parallelLimit: parallelLimit,
	}
}

// passResult carries the control-flow outcome of one block-list pass.
// returned means a return block (or a return_early policy) fired somewhere
// below; it bubbles through every enclosing list and stops the execution.
// skipped means the block's gate condition held it back entirely.
type passResult struct {
	last        any
	returned    bool
	returnValue any
	skipped     bool
}

// Run executes a top-level logic list.
func (ex *Executor) Run(ctx context.Context, blocks []schema.LogicBlock, ectx *ExecutionContext) (passResult, error) {
	return ex.runBlocks(ctx, blocks, ectx, 0)
}

func (ex *Executor) runBlocks(ctx context.Context, blocks []schema.LogicBlock, ectx *ExecutionContext, depth int) (passResult, error) {
	if depth > maxNestingDepth {
		return passResult{}, schema.NewErrorf(schema.ErrCodeDepthExceeded,
			"nesting depth %d exceeds limit %d", depth, maxNestingDepth)
	}

	var pass passResult
	for i := range blocks {
		block := &blocks[i]
		if err := ctx.Err(); err != nil {
			return pass, schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithCause(err)
		}

		ex.observer.BlockStart(ctx, block.Kind, block.ResultName)

		result, sub, err := ex.executeBlock(ctx, block, ectx, depth)
		ex.observer.BlockEnd(ctx, block.Kind, err)

		if err != nil {
			ectx.RecordError(block.Kind, err)
			switch block.OnError {
			case schema.ErrorContinue:
				ex.logger.WarnContext(ctx, "block error suppressed",
					"kind", string(block.Kind), "error", err)
				continue
			case schema.ErrorReturnEarly:
				pass.returned = true
				pass.returnValue = map[string]any{"error": err.Error()}
				return pass, nil
			default: // propagate
				var engineErr *schema.EngineError
				if errors.As(err, &engineErr) && engineErr.BlockKind == "" {
					engineErr.BlockKind = string(block.Kind)
				}
				return pass, err
			}
		}

		if sub.returned {
			pass.returned = true
			pass.returnValue = sub.returnValue
			return pass, nil
		}

		// A gate-skipped block leaves no trace: no last result, no result
		// write, and its terminal flag does not apply.
		if sub.skipped {
			continue
		}

		pass.last = result
		if block.ResultName != "" {
			ectx.SetResult(block.ResultName, result)
		}
		if block.Terminal {
			break
		}
	}
	return pass, nil
}

// executeBlock runs one block. The returned passResult is only meaningful
// when a nested return fired.
func (ex *Executor) executeBlock(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext, depth int) (any, passResult, error) {
	if block.Condition != nil {
		ok, err := ex.conditions.Evaluate(ctx, block.Condition, ectx.Scope())
		if err != nil {
			return nil, passResult{}, err
		}
		if !ok {
			return nil, passResult{skipped: true}, nil
		}
	}

	switch block.Kind {
	case schema.BlockAction:
		return ex.executeAction(ctx, block, ectx)
	case schema.BlockConditional:
		return ex.executeConditional(ctx, block, ectx, depth)
	case schema.BlockLoop:
		return ex.executeLoop(ctx, block, ectx, depth)
	case schema.BlockParallel:
		return ex.executeParallel(ctx, block, ectx)
	case schema.BlockSetVariable:
		return ex.executeSetVariable(ctx, block, ectx)
	case schema.BlockReturn:
		return ex.executeReturn(ctx, block, ectx)
	default:
		return nil, passResult{}, schema.NewErrorf(schema.ErrCodeUnknownBlock,
			"unknown block kind %q", string(block.Kind))
	}
}

func (ex *Executor) executeAction(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext) (any, passResult, error) {
	if block.Action == nil {
		return nil, passResult{}, schema.NewError(schema.ErrCodeValidation, "action block without action spec")
	}
	result, err := ex.dispatcher.Dispatch(ctx, *block.Action, ectx.Scope())
	return result, passResult{}, err
}

func (ex *Executor) executeConditional(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext, depth int) (any, passResult, error) {
	takeThen := true
	if block.If != nil {
		ok, err := ex.conditions.Evaluate(ctx, block.If, ectx.Scope())
		if err != nil {
			return nil, passResult{}, err
		}
		takeThen = ok
	}

	branch := block.Then
	if !takeThen {
		branch = block.Else
	}
	if len(branch) == 0 {
		return nil, passResult{}, nil
	}

	// Branches share the parent context directly; only loops isolate writes.
	sub, err := ex.runBlocks(ctx, branch, ectx, depth+1)
	if err != nil {
		return nil, passResult{}, err
	}
	return sub.last, sub, nil
}

func (ex *Executor) executeLoop(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext, depth int) (any, passResult, error) {
	items, err := ex.resolveItems(ctx, block, ectx)
	if err != nil {
		return nil, passResult{}, err
	}

	itemVar := block.ItemVar
	if itemVar == "" {
		itemVar = "item"
	}
	indexVar := block.IndexVar
	if indexVar == "" {
		indexVar = "index"
	}

	// The merge below copies each iteration's bindings into the parent, so
	// the iteration variables must be restored to whatever the parent held
	// before the loop rather than blindly removed.
	prevItem, hadItem := ectx.Variables[itemVar]
	prevIndex, hadIndex := ectx.Variables[indexVar]
	defer func() {
		if hadItem {
			ectx.Variables[itemVar] = prevItem
		} else {
			delete(ectx.Variables, itemVar)
		}
		if hadIndex {
			ectx.Variables[indexVar] = prevIndex
		} else {
			delete(ectx.Variables, indexVar)
		}
	}()

	collected := make([]any, 0, len(items))
	for idx, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, passResult{}, schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithCause(err)
		}

		derived := ectx.Derive()
		derived.Variables[itemVar] = item
		derived.Variables[indexVar] = idx

		sub, err := ex.runBlocks(ctx, block.Body, derived, depth+1)
		if err != nil {
			return nil, passResult{}, err
		}

		derived.MergeInto(ectx)

		if sub.returned {
			return nil, sub, nil
		}
		collected = append(collected, sub.last)
	}
	return collected, passResult{}, nil
}

// resolveItems evaluates the loop's items value and normalizes it to a
// slice. Non-sequence values iterate zero times rather than failing.
func (ex *Executor) resolveItems(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext) ([]any, error) {
	if block.Items == nil {
		return nil, nil
	}
	raw, err := ex.resolver.Resolve(ctx, *block.Items, ectx.Scope())
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		ex.logger.DebugContext(ctx, "loop items not a sequence", "type", fmt.Sprintf("%T", raw))
		return nil, nil
	}
	return items, nil
}

func (ex *Executor) executeParallel(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext) (any, passResult, error) {
	n := len(block.Actions)
	if n == 0 {
		return []any{}, passResult{}, nil
	}

	// Snapshot the scope once; branches only read from it.
	scope := ectx.Scope()

	var sem *semaphore.Weighted
	if ex.parallelLimit > 0 {
		sem = semaphore.NewWeighted(ex.parallelLimit)
	}

	results := make([]any, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range block.Actions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = schema.NewErrorf(schema.ErrCodeConnector, "branch panicked: %v", r)
				}
			}()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					errs[i] = schema.NewError(schema.ErrCodeCancelled, "execution cancelled").WithCause(err)
					return
				}
				defer sem.Release(1)
			}
			results[i], errs[i] = ex.dispatcher.Dispatch(ctx, block.Actions[i], scope)
		}(i)
	}
	wg.Wait()

	// Failed branches become error markers in input order so callers can
	// correlate outcome positions with the actions list.
	var firstErr error
	outcomes := make([]any, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			outcomes[i] = map[string]any{"error": errs[i].Error()}
			continue
		}
		outcomes[i] = results[i]
	}

	if firstErr != nil {
		if block.OnError != schema.ErrorContinue {
			return outcomes, passResult{}, firstErr
		}
		// Suppressed failures still surface through lastError.
		ectx.RecordError(schema.BlockParallel, firstErr)
	}
	return outcomes, passResult{}, nil
}

func (ex *Executor) executeSetVariable(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext) (any, passResult, error) {
	if block.Name == "" {
		return nil, passResult{}, schema.NewError(schema.ErrCodeValidation, "set_variable block without name")
	}
	var value any
	if block.Value != nil {
		resolved, err := ex.resolver.Resolve(ctx, *block.Value, ectx.Scope())
		if err != nil {
			return nil, passResult{}, err
		}
		value = resolved
	}
	ectx.Variables[block.Name] = value
	return value, passResult{}, nil
}

func (ex *Executor) executeReturn(ctx context.Context, block *schema.LogicBlock, ectx *ExecutionContext) (any, passResult, error) {
	var value any
	if block.Value != nil {
		resolved, err := ex.resolver.Resolve(ctx, *block.Value, ectx.Scope())
		if err != nil {
			return nil, passResult{}, err
		}
		value = resolved
	}
	return value, passResult{returned: true, returnValue: value}, nil
}
