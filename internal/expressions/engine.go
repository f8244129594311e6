package expressions

import (
	"context"

	"github.com/automata-dev/automata/pkg/schema"
)

// Engine evaluates expressions over the scope data map. Two implementations:
// CEL (guards and conditions) and Expr (transform element logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// EngineSet dispatches an expression to a named engine, defaulting to CEL.
type EngineSet struct {
	engines map[string]Engine
	def     string
}

// NewEngineSet builds the standard engine set. The CEL engine is optional
// (construction can fail); Expr is always available.
func NewEngineSet() *EngineSet {
	set := &EngineSet{
		engines: make(map[string]Engine),
		def:     "cel",
	}
	if cel, err := NewCELEngine(); err == nil {
		set.engines[cel.Name()] = cel
	} else {
		set.def = "expr"
	}
	ex := NewExprEngine()
	set.engines[ex.Name()] = ex
	return set
}

// Evaluate runs expression on the engine named by hint ("" selects the
// default engine).
func (s *EngineSet) Evaluate(ctx context.Context, hint, expression string, data map[string]any) (any, error) {
	name := hint
	if name == "" {
		name = s.def
	}
	eng, ok := s.engines[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown expression engine %q", name)
	}
	return eng.Evaluate(ctx, expression, data)
}
