package expressions

import (
	"encoding/json"
	"math/rand"
	"strings"
	"time"
)

// BuiltinFunc is one entry in the fixed built-in function table. Functions are
// lenient: arguments of the wrong shape yield the undefined sentinel rather
// than an error, so a bad placeholder never sinks a whole workflow.
type BuiltinFunc func(args []any) any

// builtins is the fixed function table available to function-call values.
var builtins = map[string]BuiltinFunc{
	"concat":      fnConcat,
	"join":        fnJoin,
	"length":      fnLength,
	"uppercase":   fnUppercase,
	"lowercase":   fnLowercase,
	"substring":   fnSubstring,
	"replace":     fnReplace,
	"split":       fnSplit,
	"sum":         fnSum,
	"avg":         fnAvg,
	"min":         fnMin,
	"max":         fnMax,
	"random":      fnRandom,
	"now":         fnNow,
	"format_date": fnFormatDate,
	"if":          fnIf,
}

// LookupBuiltin returns the named built-in function, or false when absent.
func LookupBuiltin(name string) (BuiltinFunc, bool) {
	fn, ok := builtins[name]
	return fn, ok
}

func fnConcat(args []any) any {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(stringify(a))
	}
	return sb.String()
}

func fnJoin(args []any) any {
	if len(args) == 0 {
		return ""
	}
	sep := ","
	if len(args) > 1 {
		sep = stringify(args[1])
	}
	items, ok := args[0].([]any)
	if !ok {
		return stringify(args[0])
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = stringify(it)
	}
	return strings.Join(parts, sep)
}

func fnLength(args []any) any {
	if len(args) == 0 {
		return 0
	}
	switch v := args[0].(type) {
	case string:
		return len(v)
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		return 0
	}
}

func fnUppercase(args []any) any {
	if len(args) == 0 {
		return ""
	}
	return strings.ToUpper(stringify(args[0]))
}

func fnLowercase(args []any) any {
	if len(args) == 0 {
		return ""
	}
	return strings.ToLower(stringify(args[0]))
}

// substring(s, start[, end]) with rune indexing, clamped to bounds.
func fnSubstring(args []any) any {
	if len(args) < 2 {
		return Undefined
	}
	runes := []rune(stringify(args[0]))
	start, ok := toInt(args[1])
	if !ok {
		return Undefined
	}
	end := len(runes)
	if len(args) > 2 {
		if e, ok := toInt(args[2]); ok {
			end = e
		}
	}
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

func fnReplace(args []any) any {
	if len(args) < 3 {
		return Undefined
	}
	return strings.ReplaceAll(stringify(args[0]), stringify(args[1]), stringify(args[2]))
}

func fnSplit(args []any) any {
	if len(args) < 2 {
		return Undefined
	}
	parts := strings.Split(stringify(args[0]), stringify(args[1]))
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

func fnSum(args []any) any {
	total := 0.0
	for _, n := range flattenNumbers(args) {
		total += n
	}
	return total
}

func fnAvg(args []any) any {
	nums := flattenNumbers(args)
	if len(nums) == 0 {
		return 0.0
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total / float64(len(nums))
}

func fnMin(args []any) any {
	nums := flattenNumbers(args)
	if len(nums) == 0 {
		return Undefined
	}
	m := nums[0]
	for _, n := range nums[1:] {
		if n < m {
			m = n
		}
	}
	return m
}

func fnMax(args []any) any {
	nums := flattenNumbers(args)
	if len(nums) == 0 {
		return Undefined
	}
	m := nums[0]
	for _, n := range nums[1:] {
		if n > m {
			m = n
		}
	}
	return m
}

// random() in [0,1); random(max) in [0,max); random(min,max) in [min,max).
func fnRandom(args []any) any {
	switch len(args) {
	case 0:
		return rand.Float64()
	case 1:
		if max, ok := toFloat(args[0]); ok && max > 0 {
			return rand.Float64() * max
		}
		return rand.Float64()
	default:
		lo, okLo := toFloat(args[0])
		hi, okHi := toFloat(args[1])
		if !okLo || !okHi || hi <= lo {
			return rand.Float64()
		}
		return lo + rand.Float64()*(hi-lo)
	}
}

func fnNow(args []any) any {
	return time.Now().UTC().Format(time.RFC3339)
}

// format_date(value, layout) using Go reference layouts; value may be an
// RFC3339 string or a time.Time.
func fnFormatDate(args []any) any {
	if len(args) == 0 {
		return Undefined
	}
	layout := time.RFC3339
	if len(args) > 1 {
		layout = stringify(args[1])
	}
	switch v := args[0].(type) {
	case time.Time:
		return v.Format(layout)
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Undefined
		}
		return t.Format(layout)
	default:
		return Undefined
	}
}

// if(cond, then, else) is a ternary over an already-resolved condition value.
func fnIf(args []any) any {
	if len(args) < 2 {
		return Undefined
	}
	var alt any = Undefined
	if len(args) > 2 {
		alt = args[2]
	}
	if Truthy(args[0]) {
		return args[1]
	}
	return alt
}

// Truthy reports the loose boolean interpretation of a resolved value:
// undefined/nil/false/0/"" are false, everything else true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case undefinedType, nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// flattenNumbers collects the numeric leaves of args, descending one level
// into slices so sum([1,2,3]) and sum(1,2,3) are equivalent.
func flattenNumbers(args []any) []float64 {
	var out []float64
	for _, a := range args {
		if items, ok := a.([]any); ok {
			for _, it := range items {
				if n, ok := toFloat(it); ok {
					out = append(out, n)
				}
			}
			continue
		}
		if n, ok := toFloat(a); ok {
			out = append(out, n)
		}
	}
	return out
}
