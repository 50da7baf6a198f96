// Package tools provides the built-in tools agents can be configured with.
// Tool input schemas are reflected from Go argument structs.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/hive/internal/agent"
)

// Builtins returns the built-in tool set keyed by tool name, ready to hand
// to the config builder.
func Builtins() map[string]agent.Tool {
	calculator := NewCalculator()
	clock := NewClock()
	return map[string]agent.Tool{
		calculator.Name(): calculator,
		clock.Name():      clock,
	}
}

// schemaFor reflects a JSON Schema from the argument struct T. Required
// fields come from jsonschema struct tags; definitions are inlined so the
// schema stands alone.
func schemaFor[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: reflecting schema: %v", err))
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("tools: reflecting schema: %v", err))
	}
	delete(m, "$schema")
	delete(m, "$id")

	out, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("tools: reflecting schema: %v", err))
	}
	return out
}
