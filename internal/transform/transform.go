// Package transform applies declarative data transformations to resolved
// values. All kinds are pure except the model-assisted transform, which makes
// one call through the query router.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/automata-dev/automata/internal/connectors"
	"github.com/automata-dev/automata/internal/expressions"
	"github.com/automata-dev/automata/pkg/schema"
)

// Transformer applies TransformSpecs. Thread-safe: compiled jq code and regex
// patterns are cached and reused across executions.
type Transformer struct {
	expr   *expressions.ExprEngine
	router connectors.QueryRouter
	logger *slog.Logger

	mu      sync.RWMutex
	jqCache map[string]*gojq.Code
	reCache map[string]*regexp.Regexp
}

// New creates a Transformer. router may be nil, in which case model-assisted
// transforms fail with a transform error.
func New(router connectors.QueryRouter, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		expr:    expressions.NewExprEngine(),
		router:  router,
		logger:  logger,
		jqCache: make(map[string]*gojq.Code),
		reCache: make(map[string]*regexp.Regexp),
	}
}

// Apply runs one transformation over an already-resolved input value.
// Pure transforms never fail on malformed input: parse failures resolve to
// explicit nil, element transforms over non-sequences resolve to an empty
// sequence (or the seed, for reduce). A malformed spec (bad regex, bad jq,
// bad element expression) is a TRANSFORM_ERROR.
func (t *Transformer) Apply(ctx context.Context, input any, spec schema.TransformSpec, scope *expressions.Scope) (any, error) {
	switch spec.Kind {
	case schema.TransformParseJSON:
		return parseJSON(input), nil

	case schema.TransformStringify:
		return stringifyJSON(input), nil

	case schema.TransformPick:
		return pickFields(input, spec.Fields, true), nil

	case schema.TransformOmit:
		return pickFields(input, spec.Fields, false), nil

	case schema.TransformMap:
		return t.mapElements(ctx, input, spec.Expression, scope)

	case schema.TransformFilter:
		return t.filterElements(ctx, input, spec.Expression, scope)

	case schema.TransformReduce:
		return t.reduceElements(ctx, input, spec, scope)

	case schema.TransformRegexExtract:
		return t.regexExtract(input, spec)

	case schema.TransformJQ:
		return t.applyJQ(ctx, input, spec.Query)

	case schema.TransformModel:
		return t.applyModel(ctx, input, spec, scope)

	default:
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"unknown transform kind %q", spec.Kind)
	}
}

// parseJSON decodes a string input; a non-string input or a decode failure
// resolves to explicit nil.
func parseJSON(input any) any {
	s, ok := input.(string)
	if !ok {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func stringifyJSON(input any) any {
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(b)
}

// pickFields keeps (keep=true) or drops (keep=false) the named fields of a
// mapping. A non-mapping input resolves to an empty mapping.
func pickFields(input any, fields []string, keep bool) map[string]any {
	obj, ok := input.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	named := make(map[string]bool, len(fields))
	for _, f := range fields {
		named[f] = true
	}
	out := make(map[string]any)
	for k, v := range obj {
		if named[k] == keep {
			out[k] = v
		}
	}
	return out
}

func (t *Transformer) mapElements(ctx context.Context, input any, expression string, scope *expressions.Scope) (any, error) {
	items, ok := input.([]any)
	if !ok {
		return []any{}, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		val, err := t.evalElement(ctx, expression, item, i, nil, scope)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func (t *Transformer) filterElements(ctx context.Context, input any, expression string, scope *expressions.Scope) (any, error) {
	items, ok := input.([]any)
	if !ok {
		return []any{}, nil
	}
	out := make([]any, 0, len(items))
	for i, item := range items {
		val, err := t.evalElement(ctx, expression, item, i, nil, scope)
		if err != nil {
			return nil, err
		}
		if expressions.Truthy(val) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (t *Transformer) reduceElements(ctx context.Context, input any, spec schema.TransformSpec, scope *expressions.Scope) (any, error) {
	items, ok := input.([]any)
	if !ok {
		return spec.Seed, nil
	}
	acc := spec.Seed
	for i, item := range items {
		val, err := t.evalElement(ctx, spec.Expression, item, i, &acc, scope)
		if err != nil {
			return nil, err
		}
		acc = val
	}
	return acc, nil
}

// evalElement runs one expr-lang element expression with item/index (and acc
// for reduce) bound alongside the scope namespaces.
func (t *Transformer) evalElement(ctx context.Context, expression string, item any, index int, acc *any, scope *expressions.Scope) (any, error) {
	env := scope.EngineData()
	env["item"] = item
	env["index"] = index
	if acc != nil {
		env["acc"] = *acc
	}
	val, err := t.expr.Evaluate(ctx, expression, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"element expression %q: %s", expression, err.Error()).WithCause(err)
	}
	return val, nil
}

// regexExtract returns the first match of the pattern (or the named capture
// group index) against the stringified input, nil when nothing matches.
func (t *Transformer) regexExtract(input any, spec schema.TransformSpec) (any, error) {
	re, err := t.getRegexp(spec.Pattern)
	if err != nil {
		return nil, err
	}

	text, ok := input.(string)
	if !ok {
		text = stringifyJSON(input).(string)
	}

	groups := re.FindStringSubmatch(text)
	if groups == nil {
		return nil, nil
	}
	if spec.Group > 0 && spec.Group < len(groups) {
		return groups[spec.Group], nil
	}
	return groups[0], nil
}

func (t *Transformer) getRegexp(pattern string) (*regexp.Regexp, error) {
	t.mu.RLock()
	re, ok := t.reCache[pattern]
	t.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"invalid extract pattern %q: %s", pattern, err.Error()).WithCause(err)
	}

	t.mu.Lock()
	t.reCache[pattern] = re
	t.mu.Unlock()
	return re, nil
}

// applyJQ evaluates a jq query over the input. A single output is returned
// directly; multiple outputs are collected into a sequence.
func (t *Transformer) applyJQ(ctx context.Context, input any, query string) (any, error) {
	code, err := t.getJQ(query)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input)
	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeTransform,
				"jq evaluation failed for %q: %s", query, err.Error()).WithCause(err)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (t *Transformer) getJQ(query string) (*gojq.Code, error) {
	if query == "" {
		return nil, schema.NewError(schema.ErrCodeTransform, "empty jq query")
	}

	t.mu.RLock()
	code, ok := t.jqCache[query]
	t.mu.RUnlock()
	if ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"jq parse error in %q: %s", query, err.Error()).WithCause(err)
	}
	code, err = gojq.Compile(parsed)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"jq compile error in %q: %s", query, err.Error()).WithCause(err)
	}

	t.mu.Lock()
	t.jqCache[query] = code
	t.mu.Unlock()
	return code, nil
}

// applyModel renders the prompt template, appends the stringified input, and
// sends it through the query router. When ParseJSON is set, the reply is
// decoded best-effort; a parse failure returns the raw text, not an error.
func (t *Transformer) applyModel(ctx context.Context, input any, spec schema.TransformSpec, scope *expressions.Scope) (any, error) {
	if t.router == nil {
		return nil, schema.NewError(schema.ErrCodeTransform,
			"model transform requires a query router (none configured)")
	}

	prompt := expressions.RenderTemplate(spec.Prompt, scope)
	payload := stringifyJSON(input).(string)
	full := prompt + "\n\nInput:\n" + payload

	reply, err := t.router.Query(ctx, full, "")
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTransform,
			"model transform query failed: %s", err.Error()).WithCause(err)
	}

	if spec.ParseJSON {
		var out any
		if jsonErr := json.Unmarshal([]byte(reply.Content), &out); jsonErr == nil {
			return out, nil
		}
		t.logger.DebugContext(ctx, "model reply is not valid JSON, returning raw text")
	}
	return reply.Content, nil
}
