package expressions

import (
	"context"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/automata-dev/automata/pkg/schema"
)

// ConditionEvaluator evaluates boolean predicates using the value resolver.
// Pure; regex patterns are compiled once and cached.
type ConditionEvaluator struct {
	resolver *Resolver

	mu      sync.RWMutex
	regexps map[string]*regexp.Regexp
}

// NewConditionEvaluator creates a ConditionEvaluator on top of the resolver.
func NewConditionEvaluator(resolver *Resolver) *ConditionEvaluator {
	return &ConditionEvaluator{
		resolver: resolver,
		regexps:  make(map[string]*regexp.Regexp),
	}
}

// Evaluate evaluates a condition against the scope. A nil condition means
// "always true", the gate semantics of every block's optional condition.
// An unknown condition kind is an evaluation failure, never a silent false.
func (ce *ConditionEvaluator) Evaluate(ctx context.Context, cond *schema.Condition, scope *Scope) (bool, error) {
	if cond == nil {
		return true, nil
	}

	switch cond.Kind {
	case schema.CondEquals:
		left, right, err := ce.resolvePair(ctx, cond.Left, cond.Right, scope)
		if err != nil {
			return false, err
		}
		return valuesEqual(left, right), nil

	case schema.CondNotEquals:
		left, right, err := ce.resolvePair(ctx, cond.Left, cond.Right, scope)
		if err != nil {
			return false, err
		}
		return !valuesEqual(left, right), nil

	case schema.CondGreaterThan:
		left, right, err := ce.resolvePair(ctx, cond.Left, cond.Right, scope)
		if err != nil {
			return false, err
		}
		cmp, ok := compareOrdered(left, right)
		return ok && cmp > 0, nil

	case schema.CondLessThan:
		left, right, err := ce.resolvePair(ctx, cond.Left, cond.Right, scope)
		if err != nil {
			return false, err
		}
		cmp, ok := compareOrdered(left, right)
		return ok && cmp < 0, nil

	case schema.CondContains:
		container, item, err := ce.resolvePair(ctx, cond.Container, cond.Item, scope)
		if err != nil {
			return false, err
		}
		return contains(container, item), nil

	case schema.CondRegexMatch:
		text, pattern, err := ce.resolvePair(ctx, cond.Text, cond.Pattern, scope)
		if err != nil {
			return false, err
		}
		return ce.regexMatch(stringify(text), stringify(pattern))

	case schema.CondAnd:
		// Identity element: And([]) is true.
		for i := range cond.Conditions {
			ok, err := ce.Evaluate(ctx, &cond.Conditions[i], scope)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case schema.CondOr:
		// Identity element: Or([]) is false.
		for i := range cond.Conditions {
			ok, err := ce.Evaluate(ctx, &cond.Conditions[i], scope)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case schema.CondNot:
		if cond.Condition == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "not condition missing child")
		}
		ok, err := ce.Evaluate(ctx, cond.Condition, scope)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case schema.CondExists:
		val, err := ce.resolveOperand(ctx, cond.Value, scope)
		if err != nil {
			return false, err
		}
		return !IsUndefined(val) && val != nil, nil

	case schema.CondIsEmpty:
		val, err := ce.resolveOperand(ctx, cond.Value, scope)
		if err != nil {
			return false, err
		}
		return isEmpty(val), nil

	case schema.CondExpression:
		if ce.resolver.engines == nil {
			return false, schema.NewError(schema.ErrCodeValidation,
				"expression condition requires an engine (none configured)")
		}
		result, err := ce.resolver.engines.Evaluate(ctx, cond.Engine, cond.Expression, scope.EngineData())
		if err != nil {
			return false, err
		}
		b, ok := result.(bool)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeExecution,
				"expression condition %q must evaluate to bool, got %T", cond.Expression, result)
		}
		return b, nil

	default:
		return false, schema.NewErrorf(schema.ErrCodeUnknownCondition,
			"unknown condition kind %q", cond.Kind)
	}
}

func (ce *ConditionEvaluator) resolvePair(ctx context.Context, left, right *schema.Value, scope *Scope) (any, any, error) {
	l, err := ce.resolveOperand(ctx, left, scope)
	if err != nil {
		return nil, nil, err
	}
	r, err := ce.resolveOperand(ctx, right, scope)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (ce *ConditionEvaluator) resolveOperand(ctx context.Context, v *schema.Value, scope *Scope) (any, error) {
	if v == nil {
		return Undefined, nil
	}
	return ce.resolver.Resolve(ctx, *v, scope)
}

func (ce *ConditionEvaluator) regexMatch(text, pattern string) (bool, error) {
	ce.mu.RLock()
	re, ok := ce.regexps[pattern]
	ce.mu.RUnlock()

	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"invalid regex pattern %q: %s", pattern, err.Error()).WithCause(err)
		}
		ce.mu.Lock()
		ce.regexps[pattern] = re
		ce.mu.Unlock()
	}

	return re.MatchString(text), nil
}

// valuesEqual compares resolved values with numeric coercion: 1 == 1.0.
// Undefined normalizes to nil first. Incompatible types are simply unequal.
func valuesEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareOrdered orders two resolved values with no implicit cross-type
// coercion: numbers compare numerically, strings lexicographically.
// Incompatible resolved types are incomparable (ok=false), never an error.
func compareOrdered(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// contains checks membership: substring for strings, element for sequences,
// key for mappings. Anything else is false.
func contains(container, item any) bool {
	switch c := normalize(container).(type) {
	case string:
		return strings.Contains(c, stringify(item))
	case []any:
		for _, el := range c {
			if valuesEqual(el, item) {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := c[stringify(item)]
		return ok
	default:
		return false
	}
}

// isEmpty treats null/undefined as empty, sequences/mappings by element
// count, strings by length. Numbers and booleans are never empty.
func isEmpty(v any) bool {
	switch val := normalize(v).(type) {
	case nil:
		return true
	case string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func normalize(v any) any {
	if IsUndefined(v) {
		return nil
	}
	return v
}
