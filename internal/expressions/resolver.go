package expressions

import (
	"context"
	"log/slog"

	"github.com/automata-dev/automata/pkg/schema"
)

// Resolver evaluates value expressions against a scope. Pure except for the
// optional expression engines, which are deterministic but may fail to
// compile user-authored expressions.
type Resolver struct {
	engines *EngineSet
	logger  *slog.Logger
}

// NewResolver creates a Resolver. engines may be nil, in which case
// expression-kind values fail with a validation error.
func NewResolver(engines *EngineSet, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{engines: engines, logger: logger}
}

// Resolve evaluates a value expression. Missing variable/result/trigger
// references resolve to the undefined sentinel, not an error; unknown
// function names resolve to undefined and are logged. Only an unknown value
// kind or a failing expression engine returns an error.
func (r *Resolver) Resolve(ctx context.Context, v schema.Value, scope *Scope) (any, error) {
	switch v.Kind {
	case schema.ValueLiteral:
		return r.resolveLiteral(ctx, v.Literal, scope)

	case schema.ValueVariable:
		return lookupOrUndefined(scope.Variables, v.Name), nil

	case schema.ValueResult:
		return lookupOrUndefined(scope.Results, v.Name), nil

	case schema.ValueTrigger:
		return LookupPath(scope.Trigger, v.Path), nil

	case schema.ValueTemplate:
		return RenderTemplate(v.Template, scope), nil

	case schema.ValueFunction:
		return r.resolveFunction(ctx, v, scope)

	case schema.ValueExpression:
		if r.engines == nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"expression value requires an engine (none configured)")
		}
		return r.engines.Evaluate(ctx, v.Engine, v.Expression, scope.EngineData())

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown value kind %q", v.Kind)
	}
}

// resolveLiteral resolves nested sequences and mappings element-wise. Nested
// schema.Value shapes inside a literal are not re-interpreted; the literal is
// returned as plain data.
func (r *Resolver) resolveLiteral(ctx context.Context, lit any, scope *Scope) (any, error) {
	switch val := lit.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.resolveLiteral(ctx, item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.resolveLiteral(ctx, item, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	default:
		return val, nil
	}
}

// resolveFunction resolves all arguments left-to-right (no short-circuiting),
// then dispatches to the built-in table. An unknown function name is logged
// and resolves to the undefined sentinel rather than failing the block.
func (r *Resolver) resolveFunction(ctx context.Context, v schema.Value, scope *Scope) (any, error) {
	args := make([]any, len(v.Args))
	for i, arg := range v.Args {
		resolved, err := r.Resolve(ctx, arg, scope)
		if err != nil {
			return nil, err
		}
		args[i] = resolved
	}

	fn, ok := LookupBuiltin(v.Function)
	if !ok {
		r.logger.WarnContext(ctx, "unknown function in value expression",
			slog.String("function", v.Function))
		return Undefined, nil
	}
	return fn(args), nil
}

// ResolveParams resolves every entry of an action's params map.
func (r *Resolver) ResolveParams(ctx context.Context, params map[string]schema.Value, scope *Scope) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for name, v := range params {
		val, err := r.Resolve(ctx, v, scope)
		if err != nil {
			return nil, err
		}
		resolved[name] = val
	}
	return resolved, nil
}

func lookupOrUndefined(m map[string]any, name string) any {
	if m == nil {
		return Undefined
	}
	if val, ok := m[name]; ok {
		return val
	}
	return Undefined
}
