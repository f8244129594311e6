package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automata-dev/automata/internal/connectors"
	"github.com/automata-dev/automata/internal/expressions"
	"github.com/automata-dev/automata/pkg/schema"
)

// fakeCapability invokes a test-provided function.
type fakeCapability struct {
	id     string
	invoke func(ctx context.Context, actionType string, params map[string]any) (any, error)
}

func (f *fakeCapability) ServiceID() string { return f.id }

func (f *fakeCapability) Invoke(ctx context.Context, _ connectors.Token, actionType string, params map[string]any) (any, error) {
	return f.invoke(ctx, actionType, params)
}

type testRig struct {
	executor *Executor
	registry *connectors.MemoryRegistry
}

func newTestRig(t *testing.T, caps ...*fakeCapability) *testRig {
	t.Helper()
	registry := connectors.NewRegistry()
	for _, c := range caps {
		require.NoError(t, registry.Register(c))
	}
	creds := connectors.NewMemoryCredentials()
	for _, c := range caps {
		creds.Put("u1", c.id, connectors.Token{AccessToken: "tok"})
	}

	logger := slog.Default()
	resolver := expressions.NewResolver(expressions.NewEngineSet(), logger)
	conditions := expressions.NewConditionEvaluator(resolver)
	dispatcher := NewDispatcher(registry, creds, resolver, 0, NopObserver{})
	return &testRig{
		executor: NewExecutor(resolver, conditions, dispatcher, NopObserver{}, logger, 4),
		registry: registry,
	}
}

func litPtr(v any) *schema.Value {
	val := schema.Lit(v)
	return &val
}

func exprPtr(expression string) *schema.Value {
	return &schema.Value{Kind: schema.ValueExpression, Expression: expression, Engine: "expr"}
}

func TestExecutor_SetVariableRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockSetVariable, Name: "a", Value: litPtr("one"), ResultName: "a"},
		{Kind: schema.BlockSetVariable, Name: "b", Value: litPtr(2), ResultName: "b"},
	}
	pass, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.False(t, pass.returned)

	assert.Equal(t, map[string]any{"a": "one", "b": 2}, ectx.Results)
	assert.Equal(t, "one", ectx.Variables["a"])
	assert.Equal(t, 2, ectx.Variables["b"])
}

func TestExecutor_LoopAccumulates(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockSetVariable, Name: "sum", Value: litPtr(0)},
		{
			Kind:  schema.BlockLoop,
			Items: litPtr([]any{1, 2, 3}),
			Body: []schema.LogicBlock{
				{Kind: schema.BlockSetVariable, Name: "sum", Value: exprPtr("variables.sum + variables.item")},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, ectx.Variables["sum"])

	// Iteration variables do not leak out of the loop.
	_, hasItem := ectx.Variables["item"]
	_, hasIndex := ectx.Variables["index"]
	assert.False(t, hasItem)
	assert.False(t, hasIndex)
}

func TestExecutor_LoopNonSequenceIsEmpty(t *testing.T) {
	var bodyRuns atomic.Int32
	cap := &fakeCapability{id: "svc", invoke: func(context.Context, string, map[string]any) (any, error) {
		bodyRuns.Add(1)
		return "ran", nil
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind:       schema.BlockLoop,
			Items:      litPtr("not a sequence"),
			ResultName: "collected",
			Body: []schema.LogicBlock{
				{Kind: schema.BlockAction, Action: &schema.ActionSpec{ServiceID: "svc", ActionType: "x"}},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.Equal(t, []any{}, ectx.Results["collected"])
	assert.Equal(t, int32(0), bodyRuns.Load())
}

func TestExecutor_LoopCollectsIterationResults(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind:       schema.BlockLoop,
			Items:      litPtr([]any{10, 20}),
			ResultName: "doubled",
			Body: []schema.LogicBlock{
				{Kind: schema.BlockSetVariable, Name: "d", Value: exprPtr("variables.item * 2")},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	collected, ok := ectx.Results["doubled"].([]any)
	require.True(t, ok)
	require.Len(t, collected, 2)
	assert.EqualValues(t, 20, collected[0])
	assert.EqualValues(t, 40, collected[1])
}

func TestExecutor_ReturnBubblesThroughLoopAndConditional(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockSetVariable, Name: "before", Value: litPtr(true)},
		{
			Kind:  schema.BlockLoop,
			Items: litPtr([]any{1, 2, 3}),
			Body: []schema.LogicBlock{
				{
					Kind: schema.BlockConditional,
					If:   &schema.Condition{Kind: schema.CondEquals, Left: &schema.Value{Kind: schema.ValueVariable, Name: "item"}, Right: litPtr(2)},
					Then: []schema.LogicBlock{
						{Kind: schema.BlockReturn, Value: litPtr("early")},
					},
				},
				{Kind: schema.BlockSetVariable, Name: "lastSeen", Value: exprPtr("variables.item")},
			},
		},
		{Kind: schema.BlockSetVariable, Name: "after", Value: litPtr(true)},
	}
	pass, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.True(t, pass.returned)
	assert.Equal(t, "early", pass.returnValue)

	// Only blocks before the return executed.
	assert.Equal(t, true, ectx.Variables["before"])
	assert.EqualValues(t, 1, ectx.Variables["lastSeen"])
	_, ranAfter := ectx.Variables["after"]
	assert.False(t, ranAfter)
}

func TestExecutor_ParallelPreservesOrderAndMarksFailures(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(_ context.Context, actionType string, _ map[string]any) (any, error) {
		if actionType == "fail" {
			return nil, errors.New("boom")
		}
		return "ok:" + actionType, nil
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind:       schema.BlockParallel,
			OnError:    schema.ErrorContinue,
			ResultName: "fanout",
			Actions: []schema.ActionSpec{
				{ServiceID: "svc", ActionType: "a"},
				{ServiceID: "svc", ActionType: "fail"},
				{ServiceID: "svc", ActionType: "c"},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)

	outcomes, ok := ectx.Results["fanout"].([]any)
	require.True(t, ok)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "ok:a", outcomes[0])
	marker, ok := outcomes[1].(map[string]any)
	require.True(t, ok, "failed branch must be an error marker")
	assert.Contains(t, marker["error"], "boom")
	assert.Equal(t, "ok:c", outcomes[2])

	require.NotNil(t, ectx.LastError)
}

func TestExecutor_ParallelPropagatesFirstError(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(_ context.Context, actionType string, _ map[string]any) (any, error) {
		if actionType == "fail" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind: schema.BlockParallel,
			Actions: []schema.ActionSpec{
				{ServiceID: "svc", ActionType: "a"},
				{ServiceID: "svc", ActionType: "fail"},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.Error(t, err)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeConnector, engineErr.Code)
}

func TestExecutor_ParallelBranchPanicIsIsolated(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(_ context.Context, actionType string, _ map[string]any) (any, error) {
		if actionType == "panic" {
			panic("branch exploded")
		}
		return "ok", nil
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind:       schema.BlockParallel,
			OnError:    schema.ErrorContinue,
			ResultName: "fanout",
			Actions: []schema.ActionSpec{
				{ServiceID: "svc", ActionType: "panic"},
				{ServiceID: "svc", ActionType: "b"},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)

	outcomes := ectx.Results["fanout"].([]any)
	marker, ok := outcomes[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, marker["error"], "branch exploded")
	assert.Equal(t, "ok", outcomes[1])
}

func TestExecutor_ErrorPolicyContinue(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(_ context.Context, actionType string, _ map[string]any) (any, error) {
		if actionType == "fail" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockAction, OnError: schema.ErrorContinue, Action: &schema.ActionSpec{ServiceID: "svc", ActionType: "fail"}},
		{Kind: schema.BlockSetVariable, Name: "next", Value: litPtr("ran")},
	}
	pass, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.False(t, pass.returned)
	assert.Equal(t, "ran", ectx.Variables["next"])

	require.NotNil(t, ectx.LastError)
	assert.Equal(t, string(schema.BlockAction), ectx.LastError.BlockKind)
	assert.Contains(t, ectx.LastError.Message, "boom")
}

func TestExecutor_ErrorPolicyReturnEarly(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(context.Context, string, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockAction, OnError: schema.ErrorReturnEarly, Action: &schema.ActionSpec{ServiceID: "svc", ActionType: "x"}},
		{Kind: schema.BlockSetVariable, Name: "after", Value: litPtr(true)},
	}
	pass, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.True(t, pass.returned)

	final, ok := pass.returnValue.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, final["error"], "boom")
	_, ranAfter := ectx.Variables["after"]
	assert.False(t, ranAfter)
}

func TestExecutor_ErrorPolicyPropagate(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(context.Context, string, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockAction, Action: &schema.ActionSpec{ServiceID: "svc", ActionType: "x"}},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.Error(t, err)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, string(schema.BlockAction), engineErr.BlockKind)
}

func TestExecutor_TerminalStopsCurrentListOnly(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind: schema.BlockConditional,
			Then: []schema.LogicBlock{
				{Kind: schema.BlockSetVariable, Name: "inner", Value: litPtr(1), Terminal: true},
				{Kind: schema.BlockSetVariable, Name: "skipped", Value: litPtr(2)},
			},
		},
		{Kind: schema.BlockSetVariable, Name: "outer", Value: litPtr(3)},
	}
	pass, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.False(t, pass.returned)

	assert.Equal(t, 1, ectx.Variables["inner"])
	_, skipped := ectx.Variables["skipped"]
	assert.False(t, skipped)
	assert.Equal(t, 3, ectx.Variables["outer"], "terminal must not stop the outer list")
}

func TestExecutor_GateConditionSkipsBlock(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{
			Kind:      schema.BlockSetVariable,
			Name:      "gated",
			Value:     litPtr(1),
			Condition: &schema.Condition{Kind: schema.CondEquals, Left: litPtr(1), Right: litPtr(2)},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	_, ran := ectx.Variables["gated"]
	assert.False(t, ran)
}

func TestExecutor_GateSkipLeavesNoTrace(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)
	ectx.Variables["r"] = "keep"

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockSetVariable, Name: "before", Value: litPtr("ran"), ResultName: "before"},
		{
			Kind:       schema.BlockSetVariable,
			Name:       "gated",
			Value:      litPtr(1),
			ResultName: "r",
			Terminal:   true,
			Condition:  &schema.Condition{Kind: schema.CondEquals, Left: litPtr(1), Right: litPtr(2)},
		},
		{Kind: schema.BlockSetVariable, Name: "after", Value: litPtr("also ran")},
	}
	pass, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)

	// The skipped block writes no result and keeps existing bindings intact.
	_, wrote := ectx.Results["r"]
	assert.False(t, wrote)
	assert.Equal(t, "keep", ectx.Variables["r"])
	assert.Equal(t, "ran", ectx.Results["before"])

	// Its terminal flag does not apply and it does not become the last result.
	assert.Equal(t, "also ran", ectx.Variables["after"])
	assert.Equal(t, "also ran", pass.last)
}

func TestExecutor_LoopRestoresIterationVariables(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockSetVariable, Name: "item", Value: litPtr("outer")},
		{Kind: schema.BlockSetVariable, Name: "row", Value: litPtr("kept")},
		{
			Kind:  schema.BlockLoop,
			Items: litPtr([]any{1, 2}),
			Body: []schema.LogicBlock{
				{Kind: schema.BlockSetVariable, Name: "seen", Value: exprPtr("variables.item")},
			},
		},
		{
			Kind:     schema.BlockLoop,
			Items:    litPtr([]any{"a", "b"}),
			ItemVar:  "row",
			IndexVar: "i",
			Body: []schema.LogicBlock{
				{Kind: schema.BlockSetVariable, Name: "lastRow", Value: exprPtr("variables.row")},
			},
		},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)

	// Inside the loops the names were the iteration bindings.
	assert.Equal(t, 2, ectx.Variables["seen"])
	assert.Equal(t, "b", ectx.Variables["lastRow"])

	// The parent's own bindings survive the loops and indexes never leak.
	assert.Equal(t, "outer", ectx.Variables["item"])
	assert.Equal(t, "kept", ectx.Variables["row"])
	_, hasIndex := ectx.Variables["index"]
	assert.False(t, hasIndex)
	_, hasI := ectx.Variables["i"]
	assert.False(t, hasI)
}

func TestExecutor_UnknownServiceAndBlockKind(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	_, err := rig.executor.Run(context.Background(), []schema.LogicBlock{
		{Kind: schema.BlockAction, Action: &schema.ActionSpec{ServiceID: "nope", ActionType: "x"}},
	}, ectx)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeUnknownService, engineErr.Code)

	_, err = rig.executor.Run(context.Background(), []schema.LogicBlock{{Kind: "teleport"}}, ectx)
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeUnknownBlock, engineErr.Code)
}

func TestExecutor_DepthCap(t *testing.T) {
	rig := newTestRig(t)
	ectx := NewExecutionContext("u1", nil)

	// Nest conditionals past the cap.
	inner := []schema.LogicBlock{{Kind: schema.BlockSetVariable, Name: "deep", Value: litPtr(1)}}
	for i := 0; i < maxNestingDepth+1; i++ {
		inner = []schema.LogicBlock{{Kind: schema.BlockConditional, Then: inner}}
	}
	_, err := rig.executor.Run(context.Background(), inner, ectx)
	require.Error(t, err)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeDepthExceeded, engineErr.Code)
}

func TestExecutor_NoCredential(t *testing.T) {
	cap := &fakeCapability{id: "svc", invoke: func(context.Context, string, map[string]any) (any, error) {
		return "ok", nil
	}}
	registry := connectors.NewRegistry()
	require.NoError(t, registry.Register(cap))
	creds := connectors.NewMemoryCredentials() // empty: no token for anyone

	resolver := expressions.NewResolver(expressions.NewEngineSet(), slog.Default())
	dispatcher := NewDispatcher(registry, creds, resolver, 0, NopObserver{})
	executor := NewExecutor(resolver, expressions.NewConditionEvaluator(resolver), dispatcher, NopObserver{}, slog.Default(), 0)

	ectx := NewExecutionContext("u1", nil)
	_, err := executor.Run(context.Background(), []schema.LogicBlock{
		{Kind: schema.BlockAction, Action: &schema.ActionSpec{ServiceID: "svc", ActionType: "x"}},
	}, ectx)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeNoCredential, engineErr.Code)
}

func TestExecutor_ActionParamsResolved(t *testing.T) {
	var got map[string]any
	cap := &fakeCapability{id: "svc", invoke: func(_ context.Context, _ string, params map[string]any) (any, error) {
		got = params
		return "ok", nil
	}}
	rig := newTestRig(t, cap)
	ectx := NewExecutionContext("u1", nil)
	ectx.Variables["city"] = "Lisbon"

	blocks := []schema.LogicBlock{
		{Kind: schema.BlockAction, Action: &schema.ActionSpec{
			ServiceID:  "svc",
			ActionType: "forecast",
			Params: map[string]schema.Value{
				"place":    schema.Var("city"),
				"template": {Kind: schema.ValueTemplate, Template: "weather in {{city}}"},
			},
		}},
	}
	_, err := rig.executor.Run(context.Background(), blocks, ectx)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", got["place"])
	assert.Equal(t, "weather in Lisbon", got["template"])
}
