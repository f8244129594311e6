package schema

// ValueKind enumerates the kinds of value expressions.
type ValueKind string

const (
	ValueLiteral    ValueKind = "literal"
	ValueVariable   ValueKind = "variable"
	ValueResult     ValueKind = "result"
	ValueTrigger    ValueKind = "trigger"
	ValueTemplate   ValueKind = "template"
	ValueFunction   ValueKind = "function"
	ValueExpression ValueKind = "expression"
)

// Value is a tagged-union value expression, evaluated against an execution
// context. Only the fields relevant to Kind are populated.
type Value struct {
	Kind ValueKind `json:"kind"`

	// literal
	Literal any `json:"value,omitempty"`

	// variable / result
	Name string `json:"name,omitempty"`

	// trigger (dotted field path into the trigger snapshot)
	Path string `json:"path,omitempty"`

	// template ({{dotted.path}} placeholders)
	Template string `json:"template,omitempty"`

	// function (fixed built-in table; args resolved left-to-right)
	Function string  `json:"function,omitempty"`
	Args     []Value `json:"args,omitempty"`

	// expression (cel | expr engine)
	Expression string `json:"expression,omitempty"`
	Engine     string `json:"engine,omitempty"`
}

// Lit is a convenience constructor for literal values.
func Lit(v any) Value {
	return Value{Kind: ValueLiteral, Literal: v}
}

// Var is a convenience constructor for variable references.
func Var(name string) Value {
	return Value{Kind: ValueVariable, Name: name}
}

// ConditionKind enumerates the kinds of boolean predicates.
type ConditionKind string

const (
	CondEquals      ConditionKind = "equals"
	CondNotEquals   ConditionKind = "not_equals"
	CondGreaterThan ConditionKind = "greater_than"
	CondLessThan    ConditionKind = "less_than"
	CondContains    ConditionKind = "contains"
	CondRegexMatch  ConditionKind = "regex_match"
	CondAnd         ConditionKind = "and"
	CondOr          ConditionKind = "or"
	CondNot         ConditionKind = "not"
	CondExists      ConditionKind = "exists"
	CondIsEmpty     ConditionKind = "is_empty"
	CondExpression  ConditionKind = "expression"
)

// Condition is a tagged-union boolean predicate.
// An unrecognized Kind is an evaluation-time error, never a silent false.
type Condition struct {
	Kind ConditionKind `json:"kind"`

	// equals / not_equals / greater_than / less_than
	Left  *Value `json:"left,omitempty"`
	Right *Value `json:"right,omitempty"`

	// contains
	Container *Value `json:"container,omitempty"`
	Item      *Value `json:"item,omitempty"`

	// regex_match
	Text    *Value `json:"text,omitempty"`
	Pattern *Value `json:"pattern,omitempty"`

	// and / or (short-circuit left-to-right)
	Conditions []Condition `json:"conditions,omitempty"`

	// not
	Condition *Condition `json:"condition,omitempty"`

	// exists / is_empty
	Value *Value `json:"value,omitempty"`

	// expression (cel | expr engine; must evaluate to bool)
	Expression string `json:"expression,omitempty"`
	Engine     string `json:"engine,omitempty"`
}

// TransformKind enumerates declarative data transformations.
type TransformKind string

const (
	TransformParseJSON    TransformKind = "parse_json"
	TransformStringify    TransformKind = "stringify"
	TransformPick         TransformKind = "pick"
	TransformOmit         TransformKind = "omit"
	TransformMap          TransformKind = "map"
	TransformFilter       TransformKind = "filter"
	TransformReduce       TransformKind = "reduce"
	TransformRegexExtract TransformKind = "regex_extract"
	TransformJQ           TransformKind = "jq"
	TransformModel        TransformKind = "model"
)

// TransformSpec describes one declarative transformation applied to a resolved
// input value. All kinds except "model" are pure.
type TransformSpec struct {
	Kind TransformKind `json:"kind"`

	// pick / omit
	Fields []string `json:"fields,omitempty"`

	// map / filter / reduce: expr-lang expression evaluated per element with
	// item, index (and acc for reduce) bound in the environment.
	Expression string `json:"expression,omitempty"`

	// reduce seed
	Seed any `json:"seed,omitempty"`

	// regex_extract
	Pattern string `json:"pattern,omitempty"`
	Group   int    `json:"group,omitempty"`

	// jq
	Query string `json:"query,omitempty"`

	// model: prompt template rendered against the context, sent to the query
	// router; ParseJSON attempts to decode the textual reply.
	Prompt    string `json:"prompt,omitempty"`
	ParseJSON bool   `json:"parse_json,omitempty"`
}
