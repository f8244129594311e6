package expressions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderTemplate resolves every {{dotted.path}} occurrence in tpl by dotted
// traversal of the scope's variables map. Unresolved paths short-circuit to
// the undefined sentinel and render as empty string; non-placeholder text is
// passed through verbatim. Rendering never fails.
func RenderTemplate(tpl string, scope *Scope) string {
	var result strings.Builder
	result.Grow(len(tpl))

	i := 0
	for i < len(tpl) {
		idx := strings.Index(tpl[i:], "{{")
		if idx == -1 {
			result.WriteString(tpl[i:])
			break
		}

		result.WriteString(tpl[i : i+idx])
		start := i + idx + 2

		end := strings.Index(tpl[start:], "}}")
		if end == -1 {
			// Unclosed placeholder: emit the rest verbatim.
			result.WriteString(tpl[i+idx:])
			break
		}
		end += start

		path := strings.TrimSpace(tpl[start:end])
		result.WriteString(stringify(scopeLookup(scope, path)))

		i = end + 2
	}

	return result.String()
}

// scopeLookup resolves a placeholder path. Bare paths address the variables
// map; the explicit variables./results./trigger. prefixes address their
// respective namespaces.
func scopeLookup(scope *Scope, path string) any {
	if scope == nil {
		return Undefined
	}
	switch {
	case strings.HasPrefix(path, "variables."):
		return LookupPath(scope.Variables, strings.TrimPrefix(path, "variables."))
	case strings.HasPrefix(path, "results."):
		return LookupPath(scope.Results, strings.TrimPrefix(path, "results."))
	case strings.HasPrefix(path, "trigger."):
		return LookupPath(scope.Trigger, strings.TrimPrefix(path, "trigger."))
	default:
		return LookupPath(scope.Variables, path)
	}
}

// LookupPath navigates into nested maps using a dot-delimited path. A missing
// key, an empty path, or traversal into a non-object short-circuits to the
// undefined sentinel.
func LookupPath(root map[string]any, path string) any {
	if path == "" || root == nil {
		return Undefined
	}

	// Direct key lookup first (supports keys containing dots).
	if val, ok := root[path]; ok {
		return val
	}

	var current any = root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return Undefined
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return Undefined
		}
		val, ok := obj[seg]
		if !ok {
			return Undefined
		}
		current = val
	}
	return current
}

// stringify converts a resolved value into its template text form.
// Undefined and nil render as empty string; composites render as JSON.
func stringify(val any) string {
	switch v := val.(type) {
	case undefinedType:
		return ""
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
