package agent

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const planSchemaJSON = `{
  "type": "object",
  "required": ["goto", "action_plan"],
  "properties": {
    "goto": {"type": "string", "minLength": 1},
    "action_plan": {"type": "array", "items": {"type": "string"}},
    "vision_only": {"type": ["array", "null"], "items": {"type": "string"}},
    "goal": {"type": ["string", "null"]}
  }
}`

const actionsSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "target_index": {"type": ["integer", "null"]},
      "input_text": {"type": ["string", "null"]}
    }
  }
}`

var (
	planSchema    = mustSchema(planSchemaJSON)
	actionsSchema = mustSchema(actionsSchemaJSON)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return schema
}

func validate(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violation: %s", strings.Join(msgs, "; "))
}
