package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automata-dev/automata/pkg/schema"
)

func newTestEvaluator(t *testing.T) *ConditionEvaluator {
	t.Helper()
	return NewConditionEvaluator(NewResolver(NewEngineSet(), nil))
}

func lit(v any) *schema.Value {
	val := schema.Lit(v)
	return &val
}

func varRef(name string) *schema.Value {
	val := schema.Var(name)
	return &val
}

func TestEvaluate_NilConditionIsTrue(t *testing.T) {
	ce := newTestEvaluator(t)

	ok, err := ce.Evaluate(context.Background(), nil, &Scope{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_AndOrIdentityElements(t *testing.T) {
	ce := newTestEvaluator(t)

	ok, err := ce.Evaluate(context.Background(), &schema.Condition{Kind: schema.CondAnd}, &Scope{})
	require.NoError(t, err)
	assert.True(t, ok, "And([]) must be true")

	ok, err = ce.Evaluate(context.Background(), &schema.Condition{Kind: schema.CondOr}, &Scope{})
	require.NoError(t, err)
	assert.False(t, ok, "Or([]) must be false")
}

func TestEvaluate_EqualsNumericCoercion(t *testing.T) {
	ce := newTestEvaluator(t)

	tests := []struct {
		name  string
		left  any
		right any
		want  bool
	}{
		{"int equals float", 1, 1.0, true},
		{"int differs", 1, 2, false},
		{"string equals", "a", "a", true},
		{"number never equals string", 1, "1", false},
		{"nested slices", []any{1.0, "x"}, []any{1.0, "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &schema.Condition{Kind: schema.CondEquals, Left: lit(tt.left), Right: lit(tt.right)}
			ok, err := ce.Evaluate(context.Background(), cond, &Scope{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluate_Ordering(t *testing.T) {
	ce := newTestEvaluator(t)

	tests := []struct {
		name string
		kind schema.ConditionKind
		left any
		right any
		want bool
	}{
		{"numeric greater", schema.CondGreaterThan, 3, 2, true},
		{"numeric not greater", schema.CondGreaterThan, 2, 3, false},
		{"string less lexicographic", schema.CondLessThan, "apple", "banana", true},
		{"incompatible types are false", schema.CondGreaterThan, "abc", 1, false},
		{"incompatible types are false for less", schema.CondLessThan, true, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &schema.Condition{Kind: tt.kind, Left: lit(tt.left), Right: lit(tt.right)}
			ok, err := ce.Evaluate(context.Background(), cond, &Scope{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluate_Contains(t *testing.T) {
	ce := newTestEvaluator(t)

	tests := []struct {
		name      string
		container any
		item      any
		want      bool
	}{
		{"substring", "hello world", "world", true},
		{"slice element", []any{1.0, 2.0}, 2, true},
		{"slice miss", []any{1.0, 2.0}, 3, false},
		{"map key", map[string]any{"k": 1}, "k", true},
		{"number container is false", 42, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &schema.Condition{Kind: schema.CondContains, Container: lit(tt.container), Item: lit(tt.item)}
			ok, err := ce.Evaluate(context.Background(), cond, &Scope{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluate_RegexMatch(t *testing.T) {
	ce := newTestEvaluator(t)

	cond := &schema.Condition{Kind: schema.CondRegexMatch, Text: lit("order-1234"), Pattern: lit(`^order-\d+$`)}
	ok, err := ce.Evaluate(context.Background(), cond, &Scope{})
	require.NoError(t, err)
	assert.True(t, ok)

	bad := &schema.Condition{Kind: schema.CondRegexMatch, Text: lit("x"), Pattern: lit("(unclosed")}
	_, err = ce.Evaluate(context.Background(), bad, &Scope{})
	require.Error(t, err)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeValidation, engineErr.Code)
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	ce := newTestEvaluator(t)

	// The second child has an unknown kind; And must not reach it.
	cond := &schema.Condition{
		Kind: schema.CondAnd,
		Conditions: []schema.Condition{
			{Kind: schema.CondEquals, Left: lit(1), Right: lit(2)},
			{Kind: "bogus"},
		},
	}
	ok, err := ce.Evaluate(context.Background(), cond, &Scope{})
	require.NoError(t, err)
	assert.False(t, ok)

	cond = &schema.Condition{
		Kind: schema.CondOr,
		Conditions: []schema.Condition{
			{Kind: schema.CondEquals, Left: lit(1), Right: lit(1)},
			{Kind: "bogus"},
		},
	}
	ok, err = ce.Evaluate(context.Background(), cond, &Scope{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ExistsAndIsEmpty(t *testing.T) {
	ce := newTestEvaluator(t)
	scope := &Scope{Variables: map[string]any{"present": "x", "nilvar": nil, "empty": []any{}}}

	tests := []struct {
		name string
		kind schema.ConditionKind
		val  *schema.Value
		want bool
	}{
		{"exists present", schema.CondExists, varRef("present"), true},
		{"exists missing", schema.CondExists, varRef("missing"), false},
		{"exists nil", schema.CondExists, varRef("nilvar"), false},
		{"is_empty missing", schema.CondIsEmpty, varRef("missing"), true},
		{"is_empty empty slice", schema.CondIsEmpty, varRef("empty"), true},
		{"is_empty non-empty", schema.CondIsEmpty, varRef("present"), false},
		{"is_empty number", schema.CondIsEmpty, lit(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &schema.Condition{Kind: tt.kind, Value: tt.val}
			ok, err := ce.Evaluate(context.Background(), cond, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluate_Not(t *testing.T) {
	ce := newTestEvaluator(t)

	inner := schema.Condition{Kind: schema.CondEquals, Left: lit(1), Right: lit(1)}
	cond := &schema.Condition{Kind: schema.CondNot, Condition: &inner}
	ok, err := ce.Evaluate(context.Background(), cond, &Scope{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_ExpressionCondition(t *testing.T) {
	ce := newTestEvaluator(t)
	scope := &Scope{Variables: map[string]any{"count": int64(5)}}

	cond := &schema.Condition{Kind: schema.CondExpression, Expression: "variables.count > 3"}
	ok, err := ce.Evaluate(context.Background(), cond, scope)
	require.NoError(t, err)
	assert.True(t, ok)

	// Non-boolean expressions fail rather than coerce.
	nonBool := &schema.Condition{Kind: schema.CondExpression, Expression: "variables.count + 1"}
	_, err = ce.Evaluate(context.Background(), nonBool, scope)
	require.Error(t, err)
}

func TestEvaluate_UnknownKindFails(t *testing.T) {
	ce := newTestEvaluator(t)

	_, err := ce.Evaluate(context.Background(), &schema.Condition{Kind: "frobnicate"}, &Scope{})
	require.Error(t, err)
	var engineErr *schema.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, schema.ErrCodeUnknownCondition, engineErr.Code)
}
