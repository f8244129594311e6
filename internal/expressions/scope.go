package expressions

// Scope is the read view of an execution context used by the resolver and
// condition evaluator: the trigger snapshot, the mutable variables map and the
// append-only results map of one execution.
type Scope struct {
	UserID    string
	Trigger   map[string]any
	Variables map[string]any
	Results   map[string]any
}

// undefinedType is the explicit "undefined" sentinel produced by missing
// variable/result/trigger references. Callers decide how to treat it:
// templates render it as empty string, Exists/IsEmpty treat it as absent.
type undefinedType struct{}

// Undefined is the sentinel value for unresolvable references.
var Undefined = undefinedType{}

// IsUndefined reports whether v is the undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefinedType)
	return ok
}

// EngineData converts the scope into the flat data map handed to the
// CEL/expr engines: variables, results and trigger as top-level namespaces.
func (s *Scope) EngineData() map[string]any {
	data := map[string]any{
		"variables": map[string]any{},
		"results":   map[string]any{},
		"trigger":   map[string]any{},
	}
	if s == nil {
		return data
	}
	if s.Variables != nil {
		data["variables"] = s.Variables
	}
	if s.Results != nil {
		data["results"] = s.Results
	}
	if s.Trigger != nil {
		data["trigger"] = s.Trigger
	}
	return data
}

// DeepCopyMap creates a deep copy of a map[string]any.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies maps and slices; primitives are value
// types and are returned as-is.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return v
	}
}
