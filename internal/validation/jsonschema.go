package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/automata-dev/automata/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for WorkflowDefinition validation.
// Embedded as a constant to avoid filesystem dependencies. Nested value and
// condition unions are validated structurally here and semantically in
// checkLogic; the schema stays permissive about union payload fields.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://automata.dev/schemas/workflow.json",
  "type": "object",
  "required": ["id", "owner_id", "logic"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "owner_id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "version": { "type": "integer", "minimum": 0 },
    "enabled": { "type": "boolean" },
    "trigger": { "$ref": "#/$defs/trigger" },
    "initialization": {
      "type": "array",
      "items": { "$ref": "#/$defs/init_step" }
    },
    "logic": {
      "type": "array",
      "items": { "$ref": "#/$defs/block" }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "trigger": {
      "type": "object",
      "required": ["category"],
      "properties": {
        "category": {
          "type": "string",
          "enum": ["time", "location", "device", "behavioral"]
        },
        "time": { "type": "object" },
        "location": { "type": "object" },
        "device": { "type": "object" },
        "behavioral": { "type": "object" }
      }
    },
    "init_step": {
      "type": "object",
      "required": ["kind", "variable"],
      "properties": {
        "kind": {
          "type": "string",
          "enum": ["set", "from_trigger", "transform", "model_query"]
        },
        "variable": { "type": "string", "minLength": 1 },
        "value": {},
        "path": { "type": "string" },
        "input": { "type": "object" },
        "transform": { "type": "object" },
        "prompt": { "type": "string" }
      }
    },
    "block": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {
          "type": "string",
          "enum": ["action", "conditional", "loop", "parallel", "set_variable", "return"]
        },
        "condition": { "type": "object" },
        "result_name": { "type": "string" },
        "on_error": {
          "type": "string",
          "enum": ["propagate", "continue", "return_early"]
        },
        "terminal": { "type": "boolean" },
        "action": { "$ref": "#/$defs/action" },
        "if": { "type": "object" },
        "then": { "type": "array", "items": { "$ref": "#/$defs/block" } },
        "else": { "type": "array", "items": { "$ref": "#/$defs/block" } },
        "items": { "type": "object" },
        "item_var": { "type": "string" },
        "index_var": { "type": "string" },
        "body": { "type": "array", "items": { "$ref": "#/$defs/block" } },
        "actions": { "type": "array", "items": { "$ref": "#/$defs/action" } },
        "name": { "type": "string" },
        "value": { "type": "object" }
      },
      "additionalProperties": false
    },
    "action": {
      "type": "object",
      "required": ["service_id", "action_type"],
      "properties": {
        "service_id": { "type": "string", "minLength": 1 },
        "action_type": { "type": "string", "minLength": 1 },
        "params": { "type": "object" }
      },
      "additionalProperties": false
    }
  }
}`

// maxLogicDepth mirrors the executor's nesting cap so definitions that
// would fail at runtime are rejected at validation time.
const maxLogicDepth = 64

// Validator checks workflow definitions before they are stored or run.
// It is safe for concurrent use.
type Validator struct {
	workflowSchema *jsonschema.Schema
}

// NewValidator compiles the embedded workflow schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://automata.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	wfSchema, err := c.Compile("https://automata.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &Validator{workflowSchema: wfSchema}, nil
}

// ValidateDefinition validates a WorkflowDefinition against the workflow
// JSON Schema and the semantic checks the schema cannot express.
func (v *Validator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow definition").WithCause(err)
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toEngineError(err)
	}

	return checkLogic(def.Logic, 0)
}

// checkLogic walks the block tree applying per-kind semantic checks and the
// nesting cap.
func checkLogic(blocks []schema.LogicBlock, depth int) error {
	if depth > maxLogicDepth {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"logic nesting exceeds depth limit %d", maxLogicDepth)
	}
	for i := range blocks {
		block := &blocks[i]
		switch block.Kind {
		case schema.BlockAction:
			if block.Action == nil {
				return schema.NewError(schema.ErrCodeValidation, "action block without action spec")
			}
		case schema.BlockConditional:
			if err := checkLogic(block.Then, depth+1); err != nil {
				return err
			}
			if err := checkLogic(block.Else, depth+1); err != nil {
				return err
			}
		case schema.BlockLoop:
			if block.Items == nil {
				return schema.NewError(schema.ErrCodeValidation, "loop block without items")
			}
			if len(block.Body) == 0 {
				return schema.NewError(schema.ErrCodeValidation, "loop block with empty body")
			}
			if err := checkLogic(block.Body, depth+1); err != nil {
				return err
			}
		case schema.BlockParallel:
			if len(block.Actions) == 0 {
				return schema.NewError(schema.ErrCodeValidation, "parallel block without actions")
			}
		case schema.BlockSetVariable:
			if block.Name == "" {
				return schema.NewError(schema.ErrCodeValidation, "set_variable block without name")
			}
		case schema.BlockReturn:
			// Any value (or none) is fine.
		default:
			return schema.NewErrorf(schema.ErrCodeValidation,
				"unknown block kind %q", string(block.Kind))
		}
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding so numbers become
// json.Number, as the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEngineError converts a jsonschema.ValidationError into an EngineError
// with leaf violations collected for actionable reporting.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation,
		"validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
